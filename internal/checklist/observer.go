package checklist

// Observer receives evaluation events. Implementations must not block.
type Observer interface {
	// CheckBegin is called before an item's check chain runs.
	CheckBegin(it *Item)
	// CheckComplete is called after the check chain with the recorded status.
	CheckComplete(it *Item, status Status, err error)
	// ItemStatusChanged is called when a dispatch moves an item to a new status.
	ItemStatusChanged(it *Item, from, to Status)
	// ItemResponseBegin is called before an item's response chain runs.
	ItemResponseBegin(it *Item)
	// ItemResponseComplete is called after the response chain. err joins
	// every response failure.
	ItemResponseComplete(it *Item, err error)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) CheckBegin(*Item)                        {}
func (NopObserver) CheckComplete(*Item, Status, error)      {}
func (NopObserver) ItemStatusChanged(*Item, Status, Status) {}
func (NopObserver) ItemResponseBegin(*Item)                 {}
func (NopObserver) ItemResponseComplete(*Item, error)       {}

// multiObserver fans events out to several observers.
type multiObserver []Observer

// Observers combines observers into one.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) CheckBegin(it *Item) {
	for _, o := range m {
		o.CheckBegin(it)
	}
}

func (m multiObserver) CheckComplete(it *Item, status Status, err error) {
	for _, o := range m {
		o.CheckComplete(it, status, err)
	}
}

func (m multiObserver) ItemStatusChanged(it *Item, from, to Status) {
	for _, o := range m {
		o.ItemStatusChanged(it, from, to)
	}
}

func (m multiObserver) ItemResponseBegin(it *Item) {
	for _, o := range m {
		o.ItemResponseBegin(it)
	}
}

func (m multiObserver) ItemResponseComplete(it *Item, err error) {
	for _, o := range m {
		o.ItemResponseComplete(it, err)
	}
}
