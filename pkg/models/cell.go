package models

// Cell is a tagged variant rather than an interface hierarchy: pipeline
// stages switch on Tag and treat unknown tags as NOTAG.
type Cell struct {
	Tag        string
	Text       string
	Normalized string // lowercased shadow used only for matching
	Column     int

	// NE-only fields
	IsSubject  bool
	ProvidedID string
	Candidates []*Candidate

	// LIT-only field
	Datatype string
}

// Row is the in-memory working form of one table row during annotation.
type Row struct {
	IDRow int
	Cells []*Cell
	// Text is the whole row joined by spaces, used by mention features.
	Text string
}

// NewRow creates an empty row with capacity for arity cells.
func NewRow(idRow, arity int) *Row {
	return &Row{IDRow: idRow, Cells: make([]*Cell, 0, arity)}
}

// AddNECell appends a named-entity cell.
func (r *Row) AddNECell(text, normalized string, column int, isSubject bool, providedID string, candidates []*Candidate) {
	r.Cells = append(r.Cells, &Cell{
		Tag:        TagNE,
		Text:       text,
		Normalized: normalized,
		Column:     column,
		IsSubject:  isSubject,
		ProvidedID: providedID,
		Candidates: candidates,
	})
}

// AddLitCell appends a literal cell.
func (r *Row) AddLitCell(text, normalized string, column int, datatype string) {
	r.Cells = append(r.Cells, &Cell{
		Tag:        TagLit,
		Text:       text,
		Normalized: normalized,
		Column:     column,
		Datatype:   datatype,
	})
}

// AddNoTagCell appends an untagged cell.
func (r *Row) AddNoTagCell(text, normalized string, column int) {
	r.Cells = append(r.Cells, &Cell{
		Tag:        TagNoTag,
		Text:       text,
		Normalized: normalized,
		Column:     column,
	})
}

// NECells returns the row's named-entity cells in column order.
func (r *Row) NECells() []*Cell {
	var out []*Cell
	for _, cell := range r.Cells {
		if cell.Tag == TagNE {
			out = append(out, cell)
		}
	}
	return out
}

// LitCells returns the row's literal cells in column order.
func (r *Row) LitCells() []*Cell {
	var out []*Cell
	for _, cell := range r.Cells {
		if cell.Tag == TagLit {
			out = append(out, cell)
		}
	}
	return out
}

// SubjectCell returns the subject cell, or nil when no subject was elected.
func (r *Row) SubjectCell() *Cell {
	for _, cell := range r.Cells {
		if cell.Tag == TagNE && cell.IsSubject {
			return cell
		}
	}
	return nil
}

// CellAt returns the cell at the given column index, or nil when out of range.
func (r *Row) CellAt(column int) *Cell {
	if column < 0 || column >= len(r.Cells) {
		return nil
	}
	return r.Cells[column]
}

// TopCandidate returns the current rank-1 candidate of an NE cell, or nil.
func (c *Cell) TopCandidate() *Candidate {
	if len(c.Candidates) == 0 {
		return nil
	}
	return c.Candidates[0]
}
