package verification

// Checks records the outcome of each check that applied. A nil entry means
// the check did not apply and was not run.
type Checks struct {
	Structure  bool  `json:"structure"`
	Signature  *bool `json:"signature,omitempty"`
	Revocation *bool `json:"revocation,omitempty"`
	Expiration *bool `json:"expiration,omitempty"`
}

// Result is the aggregated outcome of one verification. It is computed per
// call and never stored.
type Result struct {
	Valid      bool     `json:"valid"`
	Generation string   `json:"generation"`
	Checks     Checks   `json:"checks"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
}

func (r *Result) fail(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// finish computes Valid as the conjunction of every check that ran.
func (r *Result) finish() {
	valid := r.Checks.Structure
	for _, c := range []*bool{r.Checks.Signature, r.Checks.Revocation, r.Checks.Expiration} {
		if c != nil && !*c {
			valid = false
		}
	}
	r.Valid = valid
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
}

func ptr(b bool) *bool {
	return &b
}
