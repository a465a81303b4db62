package audit

// HistoryFilter selects the history of one entity.
type HistoryFilter struct {
	Kind     string
	ID       string
	Page     int
	PageSize int
}

// PagingInfo describes the position of a history page.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Page is one window of an entity history, newest first.
type Page struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}
