package validator

import (
	"strings"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

const maxNameLen = 100

func ValidateTokenRequest(id, kind, name string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(id) == "" {
		errs.Add("id", "Party id is required")
	}

	if kind != "user" && kind != "freelancer" {
		errs.Add("kind", "Kind must be user or freelancer")
	}

	if len(strings.TrimSpace(name)) > maxNameLen {
		errs.Add("name", "Name is too long")
	}

	return errs
}

func ValidateServiceRequest(userID, freelancerID, status string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(userID) == "" {
		errs.Add("user_id", "User id is required")
	}

	if strings.TrimSpace(freelancerID) == "" {
		errs.Add("freelancer_id", "Freelancer id is required")
	}

	if status != "" && status != "PENDING" && status != "ACCEPTED" && status != "REJECTED" {
		errs.Add("status", "Status must be PENDING, ACCEPTED or REJECTED")
	}

	return errs
}
