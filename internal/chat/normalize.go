package chat

import (
	"errors"

	"github.com/freelago/chatkit/internal/domain"
)

var (
	ErrNoSender          = errors.New("wire message has no sender identity")
	ErrAmbiguousSender   = errors.New("wire message has both sender identities")
	ErrNoReceiver        = errors.New("wire message has no receiver identity")
	ErrAmbiguousReceiver = errors.New("wire message has both receiver identities")
)

// Normalize collapses a raw wire message into the canonical shape. Exactly
// one field of each kind-specific pair must be populated; anything else is
// an error rather than a guessed identity.
func Normalize(raw domain.RawMessage) (domain.Message, error) {
	senderID, err := resolveOne(raw.SenderUserID, raw.SenderFreelaID, ErrNoSender, ErrAmbiguousSender)
	if err != nil {
		return domain.Message{}, err
	}
	receiverID, err := resolveOne(raw.ReceiverUserID, raw.ReceiverFreelaID, ErrNoReceiver, ErrAmbiguousReceiver)
	if err != nil {
		return domain.Message{}, err
	}

	return domain.Message{
		ID:         raw.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    raw.Content,
		CreatedAt:  raw.CreatedAt,
	}, nil
}

func resolveOne(userID, freelaID *string, errNone, errBoth error) (string, error) {
	switch {
	case userID != nil && freelaID != nil:
		return "", errBoth
	case userID != nil:
		return *userID, nil
	case freelaID != nil:
		return *freelaID, nil
	default:
		return "", errNone
	}
}
