package workflow

import "github.com/talentdesk/talentdesk/internal/shared"

// Submission statuses.
const (
	SubmissionDraft        Status = "draft"
	SubmissionSubmitted    Status = "submitted"
	SubmissionClientReview Status = "client_review"
	SubmissionInterview    Status = "interview"
	SubmissionOffer        Status = "offer"
	SubmissionPlaced       Status = "placed"
	SubmissionRejected     Status = "rejected"
)

// Job approval statuses.
const (
	JobDraft           Status = "draft"
	JobPendingApproval Status = "pending_approval"
	JobApproved        Status = "approved"
	JobRejected        Status = "rejected"
)

// Job operational statuses.
const (
	JobOpen   Status = "open"
	JobClosed Status = "closed"
)

// Inbox item statuses.
const (
	InboxNew         Status = "new"
	InboxScreening   Status = "screening"
	InboxShortlisted Status = "shortlisted"
	InboxRejected    Status = "rejected"
	InboxSpam        Status = "spam"
	InboxConverted   Status = "converted"
)

// Candidate statuses.
const (
	CandidateActive   Status = "active"
	CandidateOnHold   Status = "on_hold"
	CandidatePlaced   Status = "placed"
	CandidateArchived Status = "archived"
)

// SubmissionMachine is the placement pipeline of a candidate submitted to a job.
func SubmissionMachine() Machine {
	return Machine{
		Kind:    KindSubmission,
		Initial: SubmissionDraft,
		States: []Status{SubmissionDraft, SubmissionSubmitted, SubmissionClientReview, SubmissionInterview,
			SubmissionOffer, SubmissionPlaced, SubmissionRejected},
		Terminal:       []Status{SubmissionPlaced, SubmissionRejected},
		StayPermission: shared.PermSubmissionsView,
		Edges: []Edge{
			{From: SubmissionDraft, To: SubmissionSubmitted, Permission: shared.PermSubmissionsSubmit,
				Effects: []SideEffect{EffectIncrementJobSubmissions, EffectNotifyAssignee}},
			{From: SubmissionSubmitted, To: SubmissionClientReview, Permission: shared.PermSubmissionsSendToClient,
				Effects: []SideEffect{EffectNotifyOwner}},
			{From: SubmissionClientReview, To: SubmissionInterview, Permission: shared.PermSubmissionsScheduleInterview,
				Effects: []SideEffect{EffectNotifyOwner}},
			{From: SubmissionInterview, To: SubmissionOffer, Permission: shared.PermSubmissionsOffer,
				Effects: []SideEffect{EffectNotifyOwner}},
			{From: SubmissionInterview, To: SubmissionRejected, Permission: shared.PermSubmissionsReject,
				Effects: []SideEffect{EffectNotifyOwner}},
			{From: SubmissionOffer, To: SubmissionPlaced, Permission: shared.PermSubmissionsPlace,
				Effects: []SideEffect{EffectIncrementJobPlacements, EffectNotifyOwner}},
			{From: SubmissionOffer, To: SubmissionRejected, Permission: shared.PermSubmissionsReject,
				Effects: []SideEffect{EffectNotifyOwner}},
		},
	}
}

// JobApprovalMachine is the approval dimension of a job. Resubmission after a
// rejection is allowed.
func JobApprovalMachine() Machine {
	return Machine{
		Kind:           KindJobApproval,
		Initial:        JobDraft,
		States:         []Status{JobDraft, JobPendingApproval, JobApproved, JobRejected},
		Terminal:       []Status{JobApproved, JobRejected},
		StayPermission: shared.PermJobsView,
		Edges: []Edge{
			{From: JobDraft, To: JobPendingApproval, Permission: shared.PermJobsSubmitForApproval,
				Effects: []SideEffect{EffectNotifyAssignee}},
			{From: JobPendingApproval, To: JobApproved, Permission: shared.PermJobsApprove,
				Effects: []SideEffect{EffectOpenJob, EffectNotifyOwner}},
			{From: JobPendingApproval, To: JobRejected, Permission: shared.PermJobsApprove,
				Effects: []SideEffect{EffectNotifyOwner}},
			{From: JobRejected, To: JobDraft, Permission: shared.PermJobsResubmit, Reopen: true},
		},
	}
}

// JobOperationMachine is the open/closed dimension of a job, independent of approval.
func JobOperationMachine() Machine {
	return Machine{
		Kind:           KindJobOperation,
		Initial:        JobClosed,
		States:         []Status{JobClosed, JobOpen},
		StayPermission: shared.PermJobsView,
		Edges: []Edge{
			{From: JobClosed, To: JobOpen, Permission: shared.PermJobsOpen, Effects: []SideEffect{EffectNotifyOwner}},
			{From: JobOpen, To: JobClosed, Permission: shared.PermJobsClose, Effects: []SideEffect{EffectNotifyOwner}},
		},
	}
}

// InboxItemMachine triages inbound applications.
func InboxItemMachine() Machine {
	return Machine{
		Kind:           KindInboxItem,
		Initial:        InboxNew,
		States:         []Status{InboxNew, InboxScreening, InboxShortlisted, InboxRejected, InboxSpam, InboxConverted},
		Terminal:       []Status{InboxConverted, InboxRejected, InboxSpam},
		StayPermission: shared.PermInboxView,
		Edges: []Edge{
			{From: InboxNew, To: InboxScreening, Permission: shared.PermInboxScreen},
			{From: InboxScreening, To: InboxShortlisted, Permission: shared.PermInboxShortlist,
				Effects: []SideEffect{EffectNotifyAssignee}},
			{From: InboxScreening, To: InboxRejected, Permission: shared.PermInboxReject},
			{From: InboxScreening, To: InboxSpam, Permission: shared.PermInboxMarkSpam},
			{From: InboxShortlisted, To: InboxConverted, Permission: shared.PermInboxConvert,
				Effects: []SideEffect{EffectIncrementJobApplicants}},
		},
	}
}

// CandidateMachine tracks a candidate's availability.
func CandidateMachine() Machine {
	return Machine{
		Kind:           KindCandidate,
		Initial:        CandidateActive,
		States:         []Status{CandidateActive, CandidateOnHold, CandidatePlaced, CandidateArchived},
		Terminal:       []Status{CandidatePlaced, CandidateArchived},
		StayPermission: shared.PermCandidatesView,
		Edges: []Edge{
			{From: CandidateActive, To: CandidateOnHold, Permission: shared.PermCandidatesHold},
			{From: CandidateActive, To: CandidatePlaced, Permission: shared.PermCandidatesPlace,
				Effects: []SideEffect{EffectNotifyOwner}},
			{From: CandidateActive, To: CandidateArchived, Permission: shared.PermCandidatesArchive},
			{From: CandidateOnHold, To: CandidateActive, Permission: shared.PermCandidatesHold},
			{From: CandidateOnHold, To: CandidateArchived, Permission: shared.PermCandidatesArchive},
			{From: CandidatePlaced, To: CandidateActive, Permission: shared.PermCandidatesReopen, Reopen: true},
			{From: CandidateArchived, To: CandidateActive, Permission: shared.PermCandidatesReopen, Reopen: true},
		},
	}
}

// DefaultRegistry registers every machine of the application.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(SubmissionMachine())
	r.MustRegister(JobApprovalMachine())
	r.MustRegister(JobOperationMachine())
	r.MustRegister(InboxItemMachine())
	r.MustRegister(CandidateMachine())
	return r
}
