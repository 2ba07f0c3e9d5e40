// Package tablekit drives server-side data tables over a remote store.
//
// A Client opens the store once and hands out tables. Each Table keeps its query
// state in a shared URL-style history, translates it into page, aggregate and
// group-by requests, and exposes only the newest response of each:
//
//	c, err := tablekit.New(
//		tablekit.WithValkey("localhost:6379"),
//		tablekit.WithDoctype("purchase_order",
//			tablekit.TagField("name").Sortable(),
//			tablekit.TagField("supplier"),
//			tablekit.NumericField("grand_total").Sortable(),
//			tablekit.DateField("transaction_date").Sortable(),
//		),
//	)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	t, err := c.Table(tablekit.TableConfig{
//		Doctype: "purchase_order",
//		Columns: []string{"name", "supplier", "grand_total"},
//		SyncKey: "po",
//	})
//	t.SetSearchTerm("acme")
//	_ = t.WaitIdle(ctx)
//	snap := t.Snapshot()
//
// Struct tags declare a doctype and decode its rows:
//
//	type PurchaseOrder struct {
//		Name  string  `tablekit:"name,tag,sortable"`
//		Total float64 `tablekit:"grand_total,numeric,sortable"`
//	}
//
//	tablekit.WithDoctypeOf[PurchaseOrder]("purchase_order")
//	orders, err := tablekit.ScanRows[PurchaseOrder](snap.Rows)
package tablekit
