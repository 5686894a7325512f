package mirage

import (
	"errors"

	"github.com/mirageapi/mirage/script"
)

// storeBinding exposes one resource collection inside the sandbox as the
// `store` object. Every method converts at the boundary: sandbox values in,
// deep-copied store records back out as sandbox values.
type storeBinding struct {
	res ResourceStore
}

var _ script.Object = (*storeBinding)(nil)

func (b *storeBinding) TypeName() string { return "store" }

func (b *storeBinding) Attr(name string) (any, bool) {
	switch name {
	case "insert":
		return b.method(name, b.insert), true
	case "get":
		return b.method(name, b.get), true
	case "delete":
		return b.method(name, b.delete), true
	case "replace":
		return b.method(name, b.replace), true
	case "update":
		return b.method(name, b.update), true
	case "list":
		return &script.Builtin{Name: "store.list", Fn: b.list}, true
	case "search":
		return b.method(name, b.search), true
	case "get_schema":
		return b.method(name, b.getSchema), true
	}
	return nil, false
}

func (b *storeBinding) method(name string, fn func([]any) (any, error)) *script.Builtin {
	return &script.Builtin{
		Name: "store." + name,
		Fn: func(_ *script.Interp, args []any, kwargs map[string]any) (any, error) {
			if len(kwargs) != 0 {
				return nil, script.NewError("TypeError",
					"store.%s() takes no keyword arguments", name)
			}
			return fn(args)
		},
	}
}

// toRecord converts a sandbox dict argument into a store record.
func toRecord(v any, op string) (Record, error) {
	goVal, err := script.ToGo(v)
	if err != nil {
		return nil, script.NewError("TypeError", "store.%s(): %s", op, err.Error())
	}
	rec, ok := goVal.(map[string]any)
	if !ok {
		return nil, script.NewError("TypeError",
			"store.%s() expects a dict, got %s", op, script.TypeName(v))
	}
	return rec, nil
}

func toIdentifier(v any, op string) (any, error) {
	id, err := script.ToGo(v)
	if err != nil {
		return nil, script.NewError("TypeError", "store.%s(): %s", op, err.Error())
	}
	return id, nil
}

// fromRecord converts a store record to a sandbox dict, or None for nil.
func fromRecord(rec Record, ok bool) any {
	if !ok || rec == nil {
		return nil
	}
	return script.FromGo(map[string]any(rec))
}

func (b *storeBinding) insert(args []any) (any, error) {
	if len(args) != 1 {
		return nil, script.NewError("TypeError",
			"store.insert() takes exactly 1 argument, got %d", len(args))
	}
	rec, err := toRecord(args[0], "insert")
	if err != nil {
		return nil, err
	}
	out, err := b.res.Insert(rec)
	if err != nil {
		var dup *ErrDuplicateID
		if errors.As(err, &dup) {
			return nil, script.NewError("ValueError", "%s", dup.Error())
		}
		return nil, err
	}
	return fromRecord(out, true), nil
}

func (b *storeBinding) get(args []any) (any, error) {
	if len(args) != 1 {
		return nil, script.NewError("TypeError",
			"store.get() takes exactly 1 argument, got %d", len(args))
	}
	id, err := toIdentifier(args[0], "get")
	if err != nil {
		return nil, err
	}
	rec, ok, err := b.res.Get(id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec, ok), nil
}

func (b *storeBinding) delete(args []any) (any, error) {
	if len(args) != 1 {
		return nil, script.NewError("TypeError",
			"store.delete() takes exactly 1 argument, got %d", len(args))
	}
	id, err := toIdentifier(args[0], "delete")
	if err != nil {
		return nil, err
	}
	ok, err := b.res.Delete(id)
	if err != nil {
		return nil, err
	}
	return ok, nil
}

func (b *storeBinding) replace(args []any) (any, error) {
	if len(args) != 2 {
		return nil, script.NewError("TypeError",
			"store.replace() takes exactly 2 arguments, got %d", len(args))
	}
	id, err := toIdentifier(args[0], "replace")
	if err != nil {
		return nil, err
	}
	rec, err := toRecord(args[1], "replace")
	if err != nil {
		return nil, err
	}
	out, ok, err := b.res.Replace(id, rec)
	if err != nil {
		return nil, err
	}
	return fromRecord(out, ok), nil
}

func (b *storeBinding) update(args []any) (any, error) {
	if len(args) != 2 {
		return nil, script.NewError("TypeError",
			"store.update() takes exactly 2 arguments, got %d", len(args))
	}
	id, err := toIdentifier(args[0], "update")
	if err != nil {
		return nil, err
	}
	changes, err := toRecord(args[1], "update")
	if err != nil {
		return nil, err
	}
	out, ok, err := b.res.Update(id, changes)
	if err != nil {
		return nil, err
	}
	return fromRecord(out, ok), nil
}

// list returns an (items, total) pair so programs can page and still report
// the full collection size.
func (b *storeBinding) list(_ *script.Interp, args []any, kwargs map[string]any) (any, error) {
	if len(args) != 0 {
		return nil, script.NewError("TypeError",
			"store.list() takes keyword arguments only")
	}
	var opts ListOptions
	for k, v := range kwargs {
		switch k {
		case "limit":
			if v == nil {
				continue
			}
			n, ok := v.(int64)
			if !ok || n < 0 {
				return nil, script.NewError("TypeError", "store.list() limit must be a non-negative int")
			}
			lim := int(n)
			opts.Limit = &lim
		case "offset":
			n, ok := v.(int64)
			if !ok || n < 0 {
				return nil, script.NewError("TypeError", "store.list() offset must be a non-negative int")
			}
			opts.Offset = int(n)
		case "sort":
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, script.NewError("TypeError", "store.list() sort must be a string")
			}
			opts.Sort = s
		default:
			return nil, script.NewError("TypeError",
				"store.list() got an unexpected keyword argument %q", k)
		}
	}
	items, total, err := b.res.List(opts)
	if err != nil {
		return nil, err
	}
	page := make([]any, len(items))
	for i, rec := range items {
		page[i] = fromRecord(rec, true)
	}
	return script.NewList(script.NewList(page...), int64(total)), nil
}

func (b *storeBinding) search(args []any) (any, error) {
	if len(args) != 1 {
		return nil, script.NewError("TypeError",
			"store.search() takes exactly 1 argument, got %d", len(args))
	}
	criteria, err := toRecord(args[0], "search")
	if err != nil {
		return nil, err
	}
	items, err := b.res.Search(criteria)
	if err != nil {
		return nil, err
	}
	hits := make([]any, len(items))
	for i, rec := range items {
		hits[i] = fromRecord(rec, true)
	}
	return script.NewList(hits...), nil
}

func (b *storeBinding) getSchema(args []any) (any, error) {
	if len(args) != 0 {
		return nil, script.NewError("TypeError", "store.get_schema() takes no arguments")
	}
	snap, ok, err := b.res.Schema()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	fields := make([]any, len(snap.Fields))
	for i, f := range snap.Fields {
		fields[i] = f
	}
	return map[string]any{
		"fields":     script.NewList(fields...),
		"example":    script.FromGo(map[string]any(snap.Example)),
		"updated_at": snap.UpdatedAt,
	}, nil
}
