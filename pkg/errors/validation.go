package errors

import (
	"strings"
	"unicode"
)

// MaxChoiceTextLength bounds the label shown on a choice button.
const MaxChoiceTextLength = 256

// MaxContentLength bounds a single page's narrative text.
const MaxContentLength = 65536

// ValidateChoiceText validates the label an author typed for a choice.
// An empty label is a content-incomplete condition: the save is blocked
// with a validation message and no state changes.
func ValidateChoiceText(text string) error {
	if strings.TrimSpace(text) == "" {
		return New(ErrCodeContentIncomplete, "choice text cannot be empty")
	}

	if len(text) > MaxChoiceTextLength {
		return New(ErrCodeInvalidChoiceText, "choice text too long (max %d characters)", MaxChoiceTextLength)
	}

	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return New(ErrCodeInvalidChoiceText, "choice text contains control characters")
		}
	}

	return nil
}

// ValidatePageContent validates narrative text before saving.
// Empty content is legal - authors create pages first and write them later.
func ValidatePageContent(content string) error {
	if len(content) > MaxContentLength {
		return New(ErrCodeInvalidInput, "page content too long (max %d characters)", MaxContentLength)
	}

	for _, r := range content {
		if r == '\x00' {
			return New(ErrCodeInvalidInput, "page content contains null bytes")
		}
	}

	return nil
}

// ValidateStoryTitle validates a story title.
func ValidateStoryTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return New(ErrCodeInvalidInput, "story title cannot be empty")
	}

	if len(title) > MaxChoiceTextLength {
		return New(ErrCodeInvalidInput, "story title too long (max %d characters)", MaxChoiceTextLength)
	}

	return nil
}

// ValidateStoryStatus validates a story status transition target.
func ValidateStoryStatus(status string) error {
	switch status {
	case "draft", "published":
		return nil
	}
	return New(ErrCodeInvalidStatus, "invalid story status: %q (must be draft or published)", status)
}

// ValidateID validates an entity identifier received from a client.
// IDs are opaque to the engine; the rules are conservative transport hygiene.
func ValidateID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "id cannot be empty")
	}

	if len(id) > 128 {
		return New(ErrCodeInvalidInput, "id too long (max 128 characters)")
	}

	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "id contains invalid characters")
		}
	}

	return nil
}
