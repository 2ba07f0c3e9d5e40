package row

// Row is one record keyed by field name. Numeric fields hold float64,
// date fields hold "YYYY-MM-DD HH:MM:SS" strings, everything else strings.
type Row map[string]any

// Page is one page of rows together with the total number of matching rows.
type Page struct {
	Rows       []Row `json:"rows"`
	TotalCount int   `json:"total_count"`
}

// PageCount returns the number of pages of size pageSize needed for total rows.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
