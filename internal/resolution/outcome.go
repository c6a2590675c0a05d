package resolution

// Outcome kinds.
const (
	KindLoggedIn  = "logged_in"
	KindConnected = "connected"
	KindRejected  = "rejected"
)

// Rejection reasons.
const (
	ReasonUnverifiedAccount = "unverified_account"
	ReasonNoMatchingAccount = "no_matching_account"
	ReasonClosedAccount     = "closed_account"
)

// Outcome is the terminal state of one resolution run. For rejections no
// mutation was committed; Provider and Email are carried so the caller can
// hand the registration off to the host (for example when auto-creation is
// disabled).
type Outcome struct {
	Kind   string
	Reason string // set only for KindRejected

	AccountID      string
	IdentityID     string
	AccountCreated bool
	AutoVerified   bool

	Provider string
	Email    string

	uid string
}

// Rejected reports whether the run ended without a login or connect.
func (o *Outcome) Rejected() bool { return o.Kind == KindRejected }
