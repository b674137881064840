package provider

import (
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	e164Regex  = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	hexRegex   = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// ValidEmail reports whether address looks like a deliverable email address.
func ValidEmail(address string) bool {
	return len(address) <= 254 && emailRegex.MatchString(address)
}

// ValidE164 reports whether address is an E.164 phone number.
func ValidE164(address string) bool {
	return e164Regex.MatchString(address)
}

// ValidAPNsToken reports whether address is a hex device token.
func ValidAPNsToken(address string) bool {
	return len(address) >= 64 && hexRegex.MatchString(address)
}

// ValidDeviceToken reports whether address is a plausible opaque device or
// player identifier. FCM registration tokens and OneSignal player IDs have no
// published grammar, so this only rejects the obviously broken.
func ValidDeviceToken(address string) bool {
	if address == "" || len(address) > 4096 {
		return false
	}
	return !strings.ContainsAny(address, " \t\r\n")
}
