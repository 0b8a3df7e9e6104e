// Package domain defines the core domain models shared by the DeepShield
// client and the reference backend.
package domain

// Verdict is the outcome of a deepfake detection run.
type Verdict string

const (
	VerdictAuthentic Verdict = "Authentic"
	VerdictDeepfake  Verdict = "Deepfake"
)

// ComplaintCategory is the classifier-assigned category of a complaint.
type ComplaintCategory string

const (
	CategoryHarassment    ComplaintCategory = "harassment"
	CategoryImpersonation ComplaintCategory = "impersonation"
	CategoryIdentityTheft ComplaintCategory = "identity_theft"
	CategoryCyberbullying ComplaintCategory = "cyberbullying"
	CategoryFraud         ComplaintCategory = "fraud"
	CategoryRevengePorn   ComplaintCategory = "revenge_porn"
	CategoryDefamation    ComplaintCategory = "defamation"
	CategoryOther         ComplaintCategory = "other"
)

// ComplaintStatus tracks a complaint through review.
type ComplaintStatus string

const (
	ComplaintSubmitted     ComplaintStatus = "submitted"
	ComplaintUnderReview   ComplaintStatus = "under_review"
	ComplaintInvestigating ComplaintStatus = "investigating"
	ComplaintResolved      ComplaintStatus = "resolved"
	ComplaintClosed        ComplaintStatus = "closed"
)

// ImpactLevel is the reporter's own assessment of harm severity.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)
