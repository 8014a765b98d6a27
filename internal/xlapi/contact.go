package xlapi

import "strings"

// ValidContact accepts XL subscriber numbers in 62 format: digits only,
// starting with 628, 10 to 14 digits long.
func ValidContact(phone string) bool {
	if len(phone) < 10 || len(phone) > 14 || !strings.HasPrefix(phone, "628") {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
