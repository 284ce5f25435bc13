package operation

// Persistable is implemented by any target that carries lifecycle flags.
// The two flags plus the save intent fully determine which save-style
// method executes; the mapping in ResolveSaveKind is total and
// deterministic.
type Persistable interface {
	IsNew() bool
	IsDeleted() bool
}

// Lifecycle is an embeddable flag tracker for persistable targets. The
// fields are exported so the flags travel with the instance across the
// wire.
type Lifecycle struct {
	New     bool `json:"is_new"`
	Deleted bool `json:"is_deleted"`
}

func (l *Lifecycle) IsNew() bool     { return l.New }
func (l *Lifecycle) IsDeleted() bool { return l.Deleted }

// MarkNew flags the target as never persisted.
func (l *Lifecycle) MarkNew() { l.New = true }

// MarkOld clears both flags after a successful insert or fetch.
func (l *Lifecycle) MarkOld() { l.New = false; l.Deleted = false }

// MarkDeleted flags the target for removal on the next save.
func (l *Lifecycle) MarkDeleted() { l.Deleted = true }

// ResolveSaveKind derives the concrete save operation from the target's
// lifecycle flags. Delete takes precedence over Insert: a deleted target
// is removed even if it was also marked new. A target that is neither new
// nor deleted updates in place. Callers request "save"; this function,
// not the caller, picks the method that runs.
func ResolveSaveKind(p Persistable) Kind {
	switch {
	case p.IsDeleted():
		return KindDelete
	case p.IsNew():
		return KindInsert
	default:
		return KindUpdate
	}
}
