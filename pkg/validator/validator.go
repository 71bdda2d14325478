package validator

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxURLLength bounds destination URLs.
const MaxURLLength = 2048

// MaxCodeLength bounds custom short codes.
const MaxCodeLength = 20

// reservedCodes collide with top-level routes.
var reservedCodes = map[string]struct{}{
	"api":     {},
	"health":  {},
	"metrics": {},
	"static":  {},
	"admin":   {},
}

// ValidateURL checks that urlStr is an absolute http(s) URL. selfHost, when
// set, is this service's own host; links pointing back at it are rejected.
func ValidateURL(urlStr, selfHost string) error {
	urlStr = strings.TrimSpace(urlStr)

	if urlStr == "" {
		return ErrEmptyURL
	}
	if len(urlStr) > MaxURLLength {
		return ErrURLTooLong
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return ErrInvalidURL
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return ErrInvalidScheme
	}

	if parsedURL.Hostname() == "" {
		return ErrInvalidHost
	}

	if selfHost != "" && strings.EqualFold(parsedURL.Host, selfHost) {
		return ErrSelfReference
	}

	return nil
}

// ValidateShortCode checks a caller-chosen code: 1-20 ASCII letters or digits
// and not one of the reserved route words.
func ValidateShortCode(code string) error {
	if len(code) < 1 || len(code) > MaxCodeLength {
		return ErrInvalidCodeLength
	}

	for _, char := range code {
		if !isAlphanumeric(char) {
			return ErrInvalidCodeFormat
		}
	}

	if _, ok := reservedCodes[strings.ToLower(code)]; ok {
		return ErrReservedCode
	}

	return nil
}

func isAlphanumeric(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9')
}

// RegisterTags adds the `shortcode` and `weburl` struct tags to v. It is
// applied to gin's binding engine so request DTOs can use them.
func RegisterTags(v *validator.Validate) error {
	if err := v.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
		return ValidateShortCode(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("weburl", func(fl validator.FieldLevel) bool {
		return ValidateURL(fl.Field().String(), "") == nil
	})
}
