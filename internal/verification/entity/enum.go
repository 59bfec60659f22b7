package entity

type CredentialStatus int16

const (
	// CredentialStatusUnknown is mean status is not known / not set.
	CredentialStatusUnknown CredentialStatus = 0

	// CredentialStatusPending mean a secret has been issued but never confirmed.
	CredentialStatusPending CredentialStatus = 1

	// CredentialStatusEnabled mean the account completed confirmation and is
	// protected by a second factor.
	CredentialStatusEnabled CredentialStatus = 2
)

func (cs CredentialStatus) String() string {
	switch cs {
	case CredentialStatusPending:
		return "Pending"
	case CredentialStatusEnabled:
		return "Enabled"
	default:
		return "Unknown"
	}
}

func (cs CredentialStatus) Ensure() CredentialStatus {
	switch cs {
	case CredentialStatusPending:
		return CredentialStatusPending
	case CredentialStatusEnabled:
		return CredentialStatusEnabled
	default:
		return CredentialStatusUnknown
	}
}

// Channel identifies the out-of-band delivery channel for a session code.
type Channel string

const (
	// ChannelEmail delivers session codes over SMTP.
	ChannelEmail Channel = "email"
	// ChannelSMS delivers session codes over an SMS provider.
	ChannelSMS Channel = "sms"
)

func (c Channel) IsValid() bool {
	return c == ChannelEmail || c == ChannelSMS
}
