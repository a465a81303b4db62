package shared

// Staffing module permissions. Ownership scoped variants (edit_own / edit_all) are
// distinct permissions; the caller picks one after comparing the record owner.
var (
	PermJobsView              = Perm("jobs", "view")
	PermJobsEditOwn           = Perm("jobs", "edit_own")
	PermJobsEditAll           = Perm("jobs", "edit_all")
	PermJobsSubmitForApproval = Perm("jobs", "submit_for_approval")
	PermJobsApprove           = Perm("jobs", "approve")
	PermJobsResubmit          = Perm("jobs", "resubmit")
	PermJobsOpen              = Perm("jobs", "open")
	PermJobsClose             = Perm("jobs", "close")

	PermCandidatesView    = Perm("candidates", "view")
	PermCandidatesEditOwn = Perm("candidates", "edit_own")
	PermCandidatesEditAll = Perm("candidates", "edit_all")
	PermCandidatesHold    = Perm("candidates", "hold")
	PermCandidatesPlace   = Perm("candidates", "place")
	PermCandidatesArchive = Perm("candidates", "archive")
	PermCandidatesReopen  = Perm("candidates", "reopen")

	PermSubmissionsView              = Perm("submissions", "view")
	PermSubmissionsEdit              = Perm("submissions", "edit")
	PermSubmissionsSubmit            = Perm("submissions", "submit")
	PermSubmissionsSendToClient      = Perm("submissions", "send_to_client")
	PermSubmissionsScheduleInterview = Perm("submissions", "schedule_interview")
	PermSubmissionsOffer             = Perm("submissions", "offer")
	PermSubmissionsReject            = Perm("submissions", "reject")
	PermSubmissionsPlace             = Perm("submissions", "place")

	PermInboxView      = Perm("inbox", "view")
	PermInboxEdit      = Perm("inbox", "edit")
	PermInboxScreen    = Perm("inbox", "screen")
	PermInboxShortlist = Perm("inbox", "shortlist")
	PermInboxReject    = Perm("inbox", "reject")
	PermInboxMarkSpam  = Perm("inbox", "mark_spam")
	PermInboxConvert   = Perm("inbox", "convert")
)

// StaffingScopes lists the permissions of the staffing modules.
func StaffingScopes() []CatalogEntry {
	return []CatalogEntry{
		{PermJobsView, "View jobs"},
		{PermJobsEditOwn, "Edit jobs owned by the actor"},
		{PermJobsEditAll, "Edit any job"},
		{PermJobsSubmitForApproval, "Send a draft job for approval"},
		{PermJobsApprove, "Approve or reject a pending job"},
		{PermJobsResubmit, "Move a rejected job back to draft"},
		{PermJobsOpen, "Open a job for submissions"},
		{PermJobsClose, "Close a job"},

		{PermCandidatesView, "View candidates"},
		{PermCandidatesEditOwn, "Edit candidates owned by the actor"},
		{PermCandidatesEditAll, "Edit any candidate"},
		{PermCandidatesHold, "Put a candidate on hold or release the hold"},
		{PermCandidatesPlace, "Mark a candidate as placed"},
		{PermCandidatesArchive, "Archive a candidate"},
		{PermCandidatesReopen, "Reactivate a placed or archived candidate"},

		{PermSubmissionsView, "View submissions"},
		{PermSubmissionsEdit, "Edit submissions"},
		{PermSubmissionsSubmit, "Submit a candidate to a job"},
		{PermSubmissionsSendToClient, "Send a submission to the client"},
		{PermSubmissionsScheduleInterview, "Move a submission to interview"},
		{PermSubmissionsOffer, "Record an offer"},
		{PermSubmissionsReject, "Reject a submission"},
		{PermSubmissionsPlace, "Record a placement"},

		{PermInboxView, "View the applications inbox"},
		{PermInboxEdit, "Edit inbox items"},
		{PermInboxScreen, "Start screening an inbox item"},
		{PermInboxShortlist, "Shortlist an inbox item"},
		{PermInboxReject, "Reject an inbox item"},
		{PermInboxMarkSpam, "Mark an inbox item as spam"},
		{PermInboxConvert, "Convert a shortlisted inbox item into a candidate"},
	}
}
