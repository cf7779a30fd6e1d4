package validator

import (
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"time"
)

// formatCheckers mirrors the teacher's Formats registry: a name -> checker
// function map, extensible via RegisterFormat. Unknown formats are treated
// as valid, and no diagnostic is emitted for them.
var formatCheckers = map[string]func(string) bool{
	"date":          isDate,
	"date-time":     isDateTime,
	"time":          isTime,
	"duration":      isDuration,
	"email":         isEmail,
	"hostname":      isHostname,
	"ipv4":          isIPv4,
	"ipv6":          isIPv6,
	"uri":           isURI,
	"uri-reference": isURIReference,
	"uuid":          isUUID,
	"regex":         isRegexFormat,
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
var durationPattern = regexp.MustCompile(`^P(?:\d+W|(?:\d+Y)?(?:\d+M)?(?:\d+D)?(?:T(?:\d+H)?(?:\d+M)?(?:\d+(?:\.\d+)?S)?)?)$`)

func isDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func isTime(s string) bool {
	for _, layout := range []string{"15:04:05Z07:00", "15:04:05.999999999Z07:00", "15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isDateTime(s string) bool {
	if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func isDuration(s string) bool {
	if s == "" || s == "P" {
		return false
	}
	return durationPattern.MatchString(s)
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

func isHostname(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	return hostnamePattern.MatchString(s)
}

func isIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && !hasLeadingZeroOctet(s)
}

func hasLeadingZeroOctet(s string) bool {
	octet := ""
	check := func() bool {
		return len(octet) > 1 && octet[0] == '0'
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			if check() {
				return true
			}
			octet = ""
			continue
		}
		octet += string(s[i])
	}
	return check()
}

func isIPv6(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() == nil && ip.To16() != nil
}

func isURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs()
}

func isURIReference(s string) bool {
	_, err := url.Parse(s)
	return err == nil
}

func isUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

func isRegexFormat(s string) bool {
	_, err := regexp.Compile(s)
	return err == nil
}

// RegisterFormat adds or overrides a format checker, mirroring the
// teacher's Compiler.RegisterFormat.
func RegisterFormat(name string, check func(string) bool) {
	formatCheckers[name] = check
}

// UnregisterFormat removes a format checker.
func UnregisterFormat(name string) {
	delete(formatCheckers, name)
}
