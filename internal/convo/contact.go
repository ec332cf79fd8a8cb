package convo

import (
	"salesbot/internal/intent"
	"salesbot/internal/repo"
)

// mergeContact folds newly extracted contact fields into the stored contact.
// A non-empty new value wins; empty values never erase what we already have.
func mergeContact(existing repo.Contact, extracted intent.Contact) repo.Contact {
	if extracted.Name != "" {
		existing.Name = extracted.Name
	}
	if extracted.Email != "" {
		existing.Email = extracted.Email
	}
	if extracted.Phone != "" {
		existing.Phone = extracted.Phone
	}
	if extracted.Address != "" {
		existing.Address = extracted.Address
	}
	return existing
}

// nextContactPrompt asks for the first missing required field. An order
// needs a name, an address, and at least one of phone or email.
func nextContactPrompt(contact repo.Contact) string {
	switch {
	case contact.Name == "":
		return "Could I have your name, please?"
	case contact.Phone == "" && contact.Email == "":
		return "Thanks, " + contact.Name + ". What phone number or email can we reach you at?"
	case contact.Address == "":
		return "Almost done. What address should we deliver to?"
	default:
		return ""
	}
}
