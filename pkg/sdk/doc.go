// Package sdk is a Go client for the tablekit HTTP API.
//
// Requests carry the table state in the same URL form the server and in-process
// tables use, so a deep link can be replayed as is:
//
//	c, _ := sdk.New("http://localhost:8080", sdk.WithTimeout(5*time.Second))
//	page, _ := c.Rows(ctx, "purchase_order", sdk.Query{Link: "t.q=acme&t.p=1"})
//	sums, _ := c.Aggregates(ctx, "purchase_order", sdk.Query{}, "sum:grand_total")
//
// Or from a structured state:
//
//	q := sdk.Query{State: tablekit.State{
//		Filters: []tablekit.ColumnFilter{{ColumnID: "supplier", Value: tablekit.Exact("Acme")}},
//	}}
package sdk
