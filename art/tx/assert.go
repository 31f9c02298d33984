package tx

// ScopedAssertNoNewRecords flags a window in which appending any new
// transaction record is a programming error, e.g. while initialized
// classes are being marked visibly initialized. Pair with a deferred
// Remove.
type ScopedAssertNoNewRecords struct {
	t *Transaction
}

// AssertNoNewRecords installs the assertion on t. A nil transaction
// yields an inert scope.
func AssertNoNewRecords(t *Transaction, reason string) *ScopedAssertNoNewRecords {
	if t != nil {
		if t.noNewRecordsReason != "" {
			fatalf("assertion %q installed while %q is active", reason, t.noNewRecordsReason)
		}
		if reason == "" {
			fatalf("no-new-records assertion without a reason")
		}
		t.noNewRecordsReason = reason
	}
	return &ScopedAssertNoNewRecords{t: t}
}

// Remove lifts the assertion.
func (s *ScopedAssertNoNewRecords) Remove() {
	if s.t != nil {
		s.t.noNewRecordsReason = ""
		s.t = nil
	}
}
