package notify

import (
	"fmt"
	"strings"

	"resellerhq/warden/pkg/panels"
)

func warningMessage(w panels.Warning) Message {
	return Message{
		Subject: fmt.Sprintf("Quota warning: %s at %d%%", w.Resource.Label(), percent(w.Ratio)),
		Text: fmt.Sprintf(
			"Your panel has used %d%% of its %s quota (crossed %d%%).\n"+
				"The panel is deactivated automatically at 100%%.",
			percent(w.Ratio), w.Resource.Label(), percent(w.Bracket)),
	}
}

func ownerDeactivatedMessage(d panels.Deactivation) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Your panel was deactivated.\nReason: %s\n", d.Reason)
	if d.NewPassword != "" {
		b.WriteString("The panel password was changed and your users were disabled until the panel is reactivated.")
	} else {
		b.WriteString("Your users were disabled until the panel is reactivated.")
	}
	return Message{Subject: "Panel deactivated", Text: b.String()}
}

func operatorDeactivatedMessage(d panels.Deactivation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Panel deactivated\n\nPanel: %s (id %d)\nReason: %s\n", d.Username, d.PanelID, d.Reason)
	if d.NewPassword != "" {
		fmt.Fprintf(&b, "New password: %s\n", d.NewPassword)
	} else {
		b.WriteString("Password rotation failed, the old password is still valid\n")
	}
	fmt.Fprintf(&b, "Users disabled: %d, failed: %d", d.Disabled, d.Failed)
	return b.String()
}

func ownerReactivatedMessage(r panels.Reactivation) Message {
	var b strings.Builder
	b.WriteString("Your panel was reactivated.\n")
	if r.PasswordRestored {
		b.WriteString("Your previous password was restored.\n")
	} else {
		b.WriteString("Your previous password could not be restored, contact support for new credentials.\n")
	}
	fmt.Fprintf(&b, "Users enabled: %d", r.Enabled)
	return Message{Subject: "Panel reactivated", Text: b.String()}
}

func operatorReactivatedMessage(r panels.Reactivation) string {
	pw := "password restored"
	if !r.PasswordRestored {
		pw = "previous password unavailable"
	}
	return fmt.Sprintf("Panel reactivated\n\nPanel: %s (id %d)\nCredentials: %s\nUsers enabled: %d, failed: %d",
		r.Username, r.PanelID, pw, r.Enabled, r.Failed)
}

func percent(ratio float64) int {
	return int(ratio * 100)
}
