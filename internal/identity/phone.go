package identity

import "strings"

var phoneReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")

// NormalizePhone strips formatting characters so the same number always maps
// to the same key. A leading "00" international prefix becomes "+".
func NormalizePhone(phone string) string {
	p := phoneReplacer.Replace(strings.TrimSpace(phone))
	if strings.HasPrefix(p, "00") {
		p = "+" + p[2:]
	}
	return p
}
