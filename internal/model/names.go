package model

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

var (
	labelPattern     = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	contactIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,16}$`)
)

// CanonicalizeHostName converts a domain or host name to its canonical
// ASCII form: NFC normalised, IDNA-encoded and lower case, without a
// trailing dot.
func CanonicalizeHostName(name string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(name), ".")
	if trimmed == "" {
		return "", Parameter("empty name")
	}
	ascii, err := idna.Lookup.ToASCII(norm.NFC.String(trimmed))
	if err != nil {
		return "", Parameter("invalid name %q: %v", name, err)
	}
	ascii = strings.ToLower(ascii)
	if len(ascii) > 253 {
		return "", Parameter("name %q too long", name)
	}
	for _, label := range strings.Split(ascii, ".") {
		if !labelPattern.MatchString(label) {
			return "", Parameter("invalid label %q in %q", label, name)
		}
	}
	return ascii, nil
}

// CanonicalizeDomainName canonicalises name and checks it has at least a
// second-level label.
func CanonicalizeDomainName(name string) (string, error) {
	canon, err := CanonicalizeHostName(name)
	if err != nil {
		return "", err
	}
	if !strings.Contains(canon, ".") {
		return "", Parameter("domain name %q has no TLD", name)
	}
	return canon, nil
}

// CanonicalizeTLD canonicalises a single-label or multi-label TLD string.
func CanonicalizeTLD(name string) (string, error) {
	return CanonicalizeHostName(strings.TrimPrefix(name, "."))
}

// ValidateContactID checks the shape of a contact ID. Contact IDs are case
// sensitive and are not canonicalised.
func ValidateContactID(id string) error {
	if !contactIDPattern.MatchString(id) {
		return Parameter("invalid contact id %q", id)
	}
	return nil
}

// CanonicalizeName canonicalises name according to the naming rules of t.
func CanonicalizeName(t ResourceType, name string) (string, error) {
	switch t {
	case Domain:
		return CanonicalizeDomainName(name)
	case Host:
		return CanonicalizeHostName(name)
	case Contact:
		return name, ValidateContactID(name)
	}
	return "", Parameter("unknown resource type %q", t)
}

// ParentDomain strips the first label from a host name.
func ParentDomain(host string) string {
	_, parent, ok := strings.Cut(host, ".")
	if !ok {
		return ""
	}
	return parent
}
