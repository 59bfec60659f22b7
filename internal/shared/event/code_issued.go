package event

const CodeIssuedDestination string = "verification_code_issued"
const CodeIssuedDestinationConsumerDelivery string = "verification_code_issued_delivery"

type CodeIssuedMessage struct {
	SessionID int64  `json:"session_id"`
	AccountID string `json:"account_id"`
	Purpose   string `json:"purpose"`
	Channel   string `json:"channel"`
	Target    string `json:"target"`
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expires_at"`
}
