package compute

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// BindingKind classifies a module-scope resource declaration.
type BindingKind int

const (
	BindingUnknown BindingKind = iota
	BindingStorageBuffer
	BindingUniformBuffer
	BindingStorageTexture
	BindingSampledTexture
	BindingSampler
)

func (k BindingKind) String() string {
	switch k {
	case BindingStorageBuffer:
		return "storage"
	case BindingUniformBuffer:
		return "uniform"
	case BindingStorageTexture:
		return "storage_texture"
	case BindingSampledTexture:
		return "texture"
	case BindingSampler:
		return "sampler"
	default:
		return "unknown"
	}
}

// BindingSlot is one @group/@binding declaration of a program.
type BindingSlot struct {
	Name    string
	Group   uint32
	Binding uint32
	Kind    BindingKind
	// Type is the declared WGSL type, e.g. "array<Sphere>".
	Type string
	// Access is the address space access mode or storage texel access, when declared.
	Access string
}

// AcceptsBuffer reports whether a buffer of kind k can back this slot.
func (s BindingSlot) AcceptsBuffer(k BufferKind) bool {
	switch k {
	case BufferStructured:
		return s.Kind == BindingStorageBuffer
	case BufferUniform:
		return s.Kind == BindingUniformBuffer
	}
	return false
}

// AcceptsSurface reports whether an image can back this slot.
func (s BindingSlot) AcceptsSurface() bool {
	return s.Kind == BindingStorageTexture || s.Kind == BindingSampledTexture
}

// EntryPoint is a @compute function of a program.
type EntryPoint struct {
	Name string
	// Index is the position of the entry point among the program's compute entry points.
	Index         int
	WorkgroupSize [3]uint32
	// Uses lists the bindings the entry point references, directly or through
	// the functions it calls, sorted by name.
	Uses []string
}

// Layout is the reflected interface of a compute program.
type Layout struct {
	Entries  []EntryPoint
	Bindings map[string]BindingSlot
}

func (l *Layout) EntryPoint(name string) (EntryPoint, bool) {
	for _, e := range l.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return EntryPoint{}, false
}

func (l *Layout) Binding(name string) (BindingSlot, bool) {
	s, ok := l.Bindings[name]
	return s, ok
}

var (
	// lineCommentRegex matches // comments up to the end of the line
	lineCommentRegex = regexp.MustCompile(`//[^\n]*`)

	// blockCommentRegex matches /* ... */ comments, non-nested
	blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// constDeclRegex captures integer module constants usable in @workgroup_size
	constDeclRegex = regexp.MustCompile(`\b(?:const|override)\s+(\w+)\s*(?::\s*\w+\s*)?=\s*(\d+)[iu]?\s*;`)

	// bindingDeclRegex captures group, binding, optional address space, variable name and type,
	// accepting either attribute order.
	bindingDeclRegex = regexp.MustCompile(`(?:@group\(\s*(\d+)\s*\)\s*@binding\(\s*(\d+)\s*\)|@binding\(\s*(\d+)\s*\)\s*@group\(\s*(\d+)\s*\))\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	// fnDeclRegex matches the start of a function declaration
	fnDeclRegex = regexp.MustCompile(`\bfn\s+(\w+)\s*\(`)

	// workgroupSizeRegex captures the argument list of @workgroup_size
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(([^)]*)\)`)

	// computeAttrRegex matches the @compute stage attribute
	computeAttrRegex = regexp.MustCompile(`@compute\b`)

	identRegex = regexp.MustCompile(`\b[A-Za-z_]\w*\b`)
)

type parsedFunc struct {
	name   string
	attrs  string
	idents map[string]bool
}

// ParseLayout reflects the compute entry points and resource bindings of WGSL source.
// Omitted @workgroup_size dimensions default to 1.
func ParseLayout(source string) (*Layout, error) {
	cleaned := stripComments(source)

	bindings := parseBindings(cleaned)
	consts := parseConsts(cleaned)

	funcs, err := parseFuncs(cleaned)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*parsedFunc, len(funcs))
	for _, f := range funcs {
		byName[f.name] = f
	}

	layout := &Layout{Bindings: bindings}
	for _, f := range funcs {
		if !computeAttrRegex.MatchString(f.attrs) {
			continue
		}
		size, err := parseWorkgroupSize(f.attrs, consts)
		if err != nil {
			return nil, fmt.Errorf("compute: entry point %q: %w", f.name, err)
		}
		layout.Entries = append(layout.Entries, EntryPoint{
			Name:          f.name,
			Index:         len(layout.Entries),
			WorkgroupSize: size,
			Uses:          resolveUses(f, byName, bindings),
		})
	}
	return layout, nil
}

func stripComments(source string) string {
	s := blockCommentRegex.ReplaceAllString(source, " ")
	return lineCommentRegex.ReplaceAllString(s, "")
}

func parseConsts(source string) map[string]uint32 {
	consts := make(map[string]uint32)
	for _, m := range constDeclRegex.FindAllStringSubmatch(source, -1) {
		if v, err := strconv.ParseUint(m[2], 10, 32); err == nil {
			consts[m[1]] = uint32(v)
		}
	}
	return consts
}

func parseBindings(source string) map[string]BindingSlot {
	result := make(map[string]BindingSlot)
	for _, m := range bindingDeclRegex.FindAllStringSubmatch(source, -1) {
		groupStr, bindingStr := m[1], m[2]
		if groupStr == "" {
			groupStr, bindingStr = m[4], m[3]
		}
		group, _ := strconv.ParseUint(groupStr, 10, 32)
		binding, _ := strconv.ParseUint(bindingStr, 10, 32)
		addressSpace := strings.TrimSpace(m[5])
		name := m[6]
		typeName := strings.TrimSpace(m[7])

		kind, access := classifyBinding(addressSpace, typeName)
		result[name] = BindingSlot{
			Name:    name,
			Group:   uint32(group),
			Binding: uint32(binding),
			Kind:    kind,
			Type:    typeName,
			Access:  access,
		}
	}
	return result
}

func classifyBinding(addressSpace, typeName string) (BindingKind, string) {
	if addressSpace != "" {
		parts := strings.Split(addressSpace, ",")
		space := strings.TrimSpace(parts[0])
		access := ""
		if len(parts) > 1 {
			access = strings.TrimSpace(parts[1])
		}
		switch space {
		case "uniform":
			return BindingUniformBuffer, access
		case "storage":
			if access == "" {
				access = "read"
			}
			return BindingStorageBuffer, access
		}
		return BindingUnknown, access
	}
	switch {
	case strings.HasPrefix(typeName, "texture_storage_"):
		access := ""
		if open := strings.Index(typeName, "<"); open >= 0 {
			args := strings.Split(strings.TrimSuffix(typeName[open+1:], ">"), ",")
			if len(args) > 1 {
				access = strings.TrimSpace(args[len(args)-1])
			}
		}
		return BindingStorageTexture, access
	case strings.HasPrefix(typeName, "texture_"):
		return BindingSampledTexture, ""
	case strings.HasPrefix(typeName, "sampler"):
		return BindingSampler, ""
	}
	return BindingUnknown, ""
}

func parseFuncs(source string) ([]*parsedFunc, error) {
	var funcs []*parsedFunc
	for _, loc := range fnDeclRegex.FindAllStringSubmatchIndex(source, -1) {
		start, nameStart, nameEnd, parenOpen := loc[0], loc[2], loc[3], loc[1]-1
		name := source[nameStart:nameEnd]

		parenClose := matchDelimiter(source, parenOpen, '(', ')')
		if parenClose < 0 {
			return nil, fmt.Errorf("compute: unbalanced parameter list in fn %q", name)
		}
		braceOpen := strings.IndexByte(source[parenClose:], '{')
		if braceOpen < 0 {
			return nil, fmt.Errorf("compute: missing body for fn %q", name)
		}
		braceOpen += parenClose
		braceClose := matchDelimiter(source, braceOpen, '{', '}')
		if braceClose < 0 {
			return nil, fmt.Errorf("compute: unbalanced body in fn %q", name)
		}

		idents := make(map[string]bool)
		for _, id := range identRegex.FindAllString(source[braceOpen:braceClose], -1) {
			idents[id] = true
		}
		funcs = append(funcs, &parsedFunc{
			name:   name,
			attrs:  source[attrStart(source, start):start],
			idents: idents,
		})
	}
	return funcs, nil
}

// attrStart returns the start of the attribute run preceding a declaration at pos.
func attrStart(source string, pos int) int {
	i := strings.LastIndexAny(source[:pos], ";}")
	return i + 1
}

func matchDelimiter(source string, open int, l, r byte) int {
	depth := 0
	for i := open; i < len(source); i++ {
		switch source[i] {
		case l:
			depth++
		case r:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseWorkgroupSize(attrs string, consts map[string]uint32) ([3]uint32, error) {
	result := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(attrs)
	if m == nil {
		return result, nil
	}
	args := strings.Split(m[1], ",")
	if len(args) > 3 {
		return result, fmt.Errorf("@workgroup_size takes at most 3 dimensions, got %d", len(args))
	}
	for i, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			if i == len(args)-1 && i > 0 {
				// trailing comma
				continue
			}
			return result, fmt.Errorf("empty @workgroup_size dimension %d", i)
		}
		v, err := resolveDimension(arg, consts)
		if err != nil {
			return result, err
		}
		if v == 0 {
			return result, fmt.Errorf("@workgroup_size dimension %d is zero", i)
		}
		result[i] = v
	}
	return result, nil
}

func resolveDimension(arg string, consts map[string]uint32) (uint32, error) {
	if v, ok := consts[arg]; ok {
		return v, nil
	}
	v, err := strconv.ParseUint(strings.TrimRight(arg, "iu"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unsupported @workgroup_size dimension %q", arg)
	}
	return uint32(v), nil
}

func resolveUses(entry *parsedFunc, funcs map[string]*parsedFunc, bindings map[string]BindingSlot) []string {
	used := make(map[string]bool)
	visited := map[string]bool{entry.name: true}
	stack := []*parsedFunc{entry}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for id := range f.idents {
			if _, ok := bindings[id]; ok {
				used[id] = true
			}
			if callee, ok := funcs[id]; ok && !visited[id] {
				visited[id] = true
				stack = append(stack, callee)
			}
		}
	}
	names := make([]string, 0, len(used))
	for n := range used {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
