package services

import "fmt"

// HTML bodies for the transactional emails around appointments and consent.

func approvalEmailBody(recipientName, otherPartyName, when, meetLink string) string {
	return fmt.Sprintf(`<p>Dear %s,</p>
<p>Your appointment with %s on %s has been approved.</p>
<p>Join your session here: <a href="%s">%s</a></p>
<p>Please be on time.</p>
<p>Best regards,<br/>MindSpace Team</p>`,
		recipientName, otherPartyName, when, meetLink, meetLink)
}

func consentRequestEmailBody(studentName, counsellorName, approveLink, denyLink string, expiryHours int) string {
	return fmt.Sprintf(`<p>Dear %s,</p>
<p>Your counsellor, %s, has requested access to your chatbot history for your appointment.</p>
<p>This information can help your counsellor provide more personalized support during your session.</p>
<p>Please click one of the links below to respond to this request:</p>
<p><a href="%s">Approve Access</a></p>
<p><a href="%s">Deny Access</a></p>
<p>This request will expire in %d hours.</p>
<p>Sincerely,<br/>MindSpace Team</p>`,
		studentName, counsellorName, approveLink, denyLink, expiryHours)
}

func consentApprovedEmailBody(counsellorName, studentName, when string) string {
	return fmt.Sprintf(`<p>Hello %s,</p>
<p>Your request to access the chat history of %s for your appointment on %s has been <strong>approved</strong>.</p>
<p>You can now view their chat history in your counsellor dashboard.</p>
<p>Sincerely,<br/>MindSpace Team</p>`,
		counsellorName, studentName, when)
}

func consentDeniedEmailBody(counsellorName, studentName string) string {
	return fmt.Sprintf(`<p>Hello %s,</p>
<p>%s has <strong>declined</strong> your request to access their chat history. As a result, the chat history cannot be viewed at this time.</p>
<p>Please respect the user's privacy and continue providing support based on the available information.</p>
<p>Sincerely,<br/>MindSpace Team</p>`,
		counsellorName, studentName)
}
