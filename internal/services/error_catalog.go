package services

// Local admission failure codes, produced before any provider call.
const (
	CodeNoActiveSession     = "NO_ACTIVE_SESSION"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
)

// whatsappErrorCatalog maps WhatsApp Cloud API error codes to operator
// explanations. Codes missing here fall back to a generic line.
var whatsappErrorCatalog = map[string]string{
	"100":    "Invalid parameter in the request, usually a malformed recipient or payload field",
	"368":    "Business account temporarily blocked for policy violations",
	"130429": "Cloud API throughput rate limit hit, throttle and retry",
	"131016": "WhatsApp service temporarily unavailable, retry later",
	"131026": "Message undeliverable, recipient may not have WhatsApp or has blocked the sender",
	"131042": "Billing or payment issue on the WhatsApp business account",
	"131047": "More than 24 hours since the customer's last message, a template is required to re-engage",
	"131048": "Sending paused due to spam rate limits on this number",
	"131049": "Marketing message limit reached for this recipient",
	"131051": "Unsupported message type for this recipient",
	"131052": "Media download failed on the provider side",
	"131053": "Media upload failed, check format and size",
	"132000": "Template parameter count does not match the approved template",
	"132001": "Template does not exist or is not approved for this language",
	"132007": "Template content violates WhatsApp policy",
	"132012": "Template parameter format does not match the approved template",
	"133010": "Recipient phone number is not registered on WhatsApp",

	CodeNoActiveSession:     "No open 24-hour session window for this recipient, send a template or wait for an inbound message",
	CodeQuotaExceeded:       "Per-organization WhatsApp send quota exhausted, retried automatically once the window resets",
	CodeProviderUnavailable: "Provider endpoint unreachable or returned a transport error, retried automatically",
}

// transientErrorCodes marks failures likely to clear on their own. The flag
// is informational, for the error-patterns report: dispatch retries every
// failure uniformly until the attempt budget is spent.
var transientErrorCodes = map[string]bool{
	"130429":                true,
	"131016":                true,
	"131048":                true,
	"131049":                true,
	"131052":                true,
	CodeQuotaExceeded:       true,
	CodeProviderUnavailable: true,
}

// ExplainErrorCode returns the operator-facing explanation for a provider
// or admission error code.
func ExplainErrorCode(code string) string {
	if expl, ok := whatsappErrorCatalog[code]; ok {
		return expl
	}
	return "Unrecognized provider error code, check provider documentation"
}

// IsTransientErrorCode reports whether a code tends to clear without
// operator intervention.
func IsTransientErrorCode(code string) bool {
	return transientErrorCodes[code]
}
