package workflow

// =============================================================================
// ACTIONS
// =============================================================================

// Action is a state transition request handled by Reduce.
type Action interface {
	isAction()
}

type (
	// LoadStarted marks the beginning of a refresh.
	LoadStarted struct{}

	// Loaded presents a reconciled snapshot.
	Loaded[T Record] struct {
		Items      []T
		HasStaging bool
		IsDirty    bool
	}

	// LoadFailed keeps the last known items and surfaces an error.
	LoadFailed struct{ Message string }

	// ItemAdded appends a record.
	ItemAdded[T Record] struct {
		Item    T
		Message string
	}

	// ItemEdited replaces the record with the same id.
	ItemEdited[T Record] struct {
		Item    T
		Message string
	}

	// ItemRemoved is the optimistic half of a delete.
	ItemRemoved struct{ ID string }

	// RemovalRolledBack reinserts a record removed by ItemRemoved and
	// restores the dirty flag that preceded it.
	RemovalRolledBack[T Record] struct {
		Index    int
		Item     T
		WasDirty bool
		Message  string
	}

	// StagingSaved records a successful replace-all write to staging.
	// StillDirty is set when Items changed while the write was in flight.
	StagingSaved struct {
		Message    string
		StillDirty bool
	}

	// ProductionUploaded records a successful promotion.
	ProductionUploaded struct{ Message string }

	// OperationStarted marks a store round trip in flight.
	OperationStarted struct{}

	// OperationFailed ends a round trip with an error, state otherwise unchanged.
	OperationFailed struct{ Message string }

	// Succeeded ends a round trip with a success message only.
	Succeeded struct{ Message string }

	SuccessCleared struct{}
	ErrorCleared   struct{}
)

func (LoadStarted) isAction()          {}
func (Loaded[T]) isAction()            {}
func (LoadFailed) isAction()           {}
func (ItemAdded[T]) isAction()         {}
func (ItemEdited[T]) isAction()        {}
func (ItemRemoved) isAction()          {}
func (RemovalRolledBack[T]) isAction() {}
func (StagingSaved) isAction()         {}
func (ProductionUploaded) isAction()   {}
func (OperationStarted) isAction()     {}
func (OperationFailed) isAction()      {}
func (Succeeded) isAction()            {}
func (SuccessCleared) isAction()       {}
func (ErrorCleared) isAction()         {}

func (a ItemAdded[T]) successText() string  { return a.Message }
func (a ItemEdited[T]) successText() string { return a.Message }

// =============================================================================
// REDUCER
// =============================================================================

// Reduce applies a to s and returns the next state. It never mutates s.
// Actions it does not recognize leave the state unchanged.
func Reduce[T Record](s State[T], a Action) State[T] {
	next := s.clone()

	switch a := a.(type) {
	case LoadStarted:
		next.Loading = true
		next.Error = ""

	case Loaded[T]:
		next.Items = cloneItems(a.Items)
		if next.Items == nil {
			next.Items = []T{}
		}
		next.HasStaging = a.HasStaging
		next.IsDirty = a.IsDirty
		next.Loading = false

	case LoadFailed:
		next.Loading = false
		next.Error = a.Message

	case ItemAdded[T]:
		next.Items = append(next.Items, a.Item)
		next.IsDirty = true
		next.Success = a.Message

	case ItemEdited[T]:
		i := next.IndexOf(a.Item.RecordID())
		if i < 0 {
			return s.clone()
		}
		next.Items[i] = a.Item
		next.IsDirty = true
		next.Success = a.Message

	case ItemRemoved:
		i := next.IndexOf(a.ID)
		if i < 0 {
			return s.clone()
		}
		next.Items = append(next.Items[:i], next.Items[i+1:]...)
		next.IsDirty = true

	case RemovalRolledBack[T]:
		if next.IndexOf(a.Item.RecordID()) < 0 {
			idx := a.Index
			if idx < 0 || idx > len(next.Items) {
				idx = len(next.Items)
			}
			next.Items = append(next.Items[:idx], append([]T{a.Item}, next.Items[idx:]...)...)
		}
		next.IsDirty = a.WasDirty
		next.Loading = false
		next.Error = a.Message

	case StagingSaved:
		next.HasStaging = true
		next.IsDirty = a.StillDirty
		next.Loading = false
		next.Success = a.Message

	case ProductionUploaded:
		next.Items = []T{}
		next.HasStaging = false
		next.IsDirty = false
		next.Loading = false
		next.Success = a.Message

	case OperationStarted:
		next.Loading = true
		next.Error = ""

	case OperationFailed:
		next.Loading = false
		next.Error = a.Message

	case Succeeded:
		next.Loading = false
		next.Success = a.Message

	case SuccessCleared:
		next.Success = ""

	case ErrorCleared:
		next.Error = ""
	}

	return next
}
