// Package templates holds the canned user-facing texts of the relay.
package templates

import "strings"

// FooterText is the attribution appended to dedicated-bot replies.
const FooterText = "This Bot was made using @Connectsprobot"

const footerBlock = "\n\n—\n" + FooterText

// AddFooter appends the attribution footer.
func AddFooter(message string) string {
	return message + footerBlock
}

// RemoveFooter strips the footer if present.
func RemoveFooter(message string) string {
	return strings.Replace(message, footerBlock, "", 1)
}
