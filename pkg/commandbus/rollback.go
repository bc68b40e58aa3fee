package commandbus

import "fmt"

// RollbackConfiguration decides whether a failure rolls the unit of work back
// instead of committing it.
type RollbackConfiguration interface {
	RollBackOn(err error) bool
}

// RollbackFunc adapts a function to RollbackConfiguration.
type RollbackFunc func(err error) bool

// RollBackOn calls f(err) for non-nil errors.
func (f RollbackFunc) RollBackOn(err error) bool {
	if err == nil {
		return false
	}
	return f(err)
}

// RollbackOnAnyError rolls back on every failure.
var RollbackOnAnyError RollbackConfiguration = RollbackFunc(func(err error) bool {
	return true
})

// RollbackOnUnexpected rolls back on every failure except declared business
// rejections, which still commit whatever events were produced.
var RollbackOnUnexpected RollbackConfiguration = RollbackFunc(func(err error) bool {
	return KindOf(err) != KindBusiness
})

// RollbackOnKinds rolls back only on failures of the given kinds.
func RollbackOnKinds(kinds ...Kind) RollbackConfiguration {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return RollbackFunc(func(err error) bool {
		_, ok := set[KindOf(err)]
		return ok
	})
}

// PolicyByName resolves a configured policy name: "any" or "unexpected".
func PolicyByName(name string) (RollbackConfiguration, error) {
	switch name {
	case "any":
		return RollbackOnAnyError, nil
	case "", "unexpected":
		return RollbackOnUnexpected, nil
	default:
		return nil, fmt.Errorf("unknown rollback policy: %s (must be 'any' or 'unexpected')", name)
	}
}
