package dispatch

import (
	"sync"
)

// DocumentReader is the read side a verification engine needs: the raw
// document map as stored, which may carry either canonical DocumentKind
// keys or legacy camelCase/snake_case variants (§9).
type DocumentReader interface {
	GetDriverDocuments(driverID string) (map[string]rawDocument, error)
}

// rawDocument is the permissive shape documents may arrive in from
// storage: legacy writers set boolean flags or a bare `status`/
// `verificationStatus` string instead of the canonical DocumentStatus.
type rawDocument struct {
	URL                string
	Verified           bool
	Rejected           bool
	Status             string
	VerificationStatus string
}

// classify derives this one document's status per §4.2 step 3.
func (d rawDocument) classify() DocumentStatus {
	if d.Verified || d.Status == "verified" || d.VerificationStatus == "verified" || d.VerificationStatus == "approved" {
		return DocStatusVerified
	}
	if d.Rejected || d.Status == "rejected" || d.VerificationStatus == "rejected" {
		return DocStatusRejected
	}
	return DocStatusPending
}

// exists reports whether a document record was actually uploaded, per
// §4.2 step 2: a URL or an explicit verification status counts.
func (d rawDocument) exists() bool {
	return d.URL != "" || d.Status != "" || d.VerificationStatus != "" || d.Verified || d.Rejected
}

// legacySnakeCase maps each canonical DocumentKind to its snake_case
// legacy form for the dual-key lookup §4.2/§9 require.
var legacySnakeCase = map[DocumentKind]string{
	DocDrivingLicense: "driving_license",
	DocAadhaarCard:    "aadhaar_card",
	DocBikeInsurance:  "bike_insurance",
	DocRCBook:         "rc_book",
	DocProfilePhoto:   "profile_photo",
}

// VerificationEngine derives per-driver verification status from raw
// document state (C3) and caches the result until explicitly invalidated.
type VerificationEngine struct {
	mu    sync.RWMutex
	cache map[string]VerificationStatus
}

func NewVerificationEngine() *VerificationEngine {
	return &VerificationEngine{cache: make(map[string]VerificationStatus)}
}

// Invalidate drops the cached status for a driver. Per §5, cache
// invalidation failures are logged and ignored elsewhere — this call
// itself cannot fail.
func (v *VerificationEngine) Invalidate(driverID string) {
	v.mu.Lock()
	delete(v.cache, driverID)
	v.mu.Unlock()
}

// Cached returns a previously computed status without recomputation.
func (v *VerificationEngine) Cached(driverID string) (VerificationStatus, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.cache[driverID]
	return s, ok
}

// Compute runs the §4.2 algorithm over a raw document map (which may use
// either camelCase or snake_case keys) and returns the overall status,
// caching the result.
func (v *VerificationEngine) Compute(driverID string, rawDocs map[string]rawDocument, adminApproved bool) VerificationStatus {
	var any_exists, anyRejected, allVerified bool
	allVerified = true
	for _, kind := range RequiredDocumentKinds {
		doc, ok := rawDocs[string(kind)]
		if !ok {
			doc, ok = rawDocs[legacySnakeCase[kind]]
		}
		if !ok || !doc.exists() {
			allVerified = false
			continue
		}
		any_exists = true
		switch doc.classify() {
		case DocStatusRejected:
			anyRejected = true
			allVerified = false
		case DocStatusPending:
			allVerified = false
		}
	}

	var status VerificationStatus
	switch {
	case !any_exists:
		status = VerificationNotUploaded
	case anyRejected:
		status = VerificationRejected
	case allVerified:
		if adminApproved {
			status = VerificationApproved
		} else {
			status = VerificationVerified
		}
	default:
		status = VerificationPending
	}

	v.mu.Lock()
	v.cache[driverID] = status
	v.mu.Unlock()
	return status
}

// ComputeFromUser runs Compute directly against a User's typed Documents
// map, converting it to the raw shape first. This is the common path:
// documents stored by this core's own writers are always canonical.
func (v *VerificationEngine) ComputeFromUser(u *User) VerificationStatus {
	raw := make(map[string]rawDocument, len(u.Documents))
	for kind, rec := range u.Documents {
		raw[string(kind)] = rawDocument{
			URL:    rec.URL,
			Status: string(rec.Status),
		}
	}
	adminApproved := u.VerificationStatus == VerificationApproved
	status := v.Compute(u.UserID, raw, adminApproved)
	u.VerificationStatus = status
	u.IsVerified = status.IsEligible()
	return status
}
