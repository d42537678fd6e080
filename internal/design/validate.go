package design

// Validate checks the structure of a document: ids, list shapes, property
// bindings and the per-section bindings. Trial-count and cardinality
// checks belong to the resolver; section references belong to the section
// graph.
func Validate(doc *Document) error {
	var p Problems

	if doc.FrameRate <= 0 {
		p.Addf("frame rate must be positive, got %d", doc.FrameRate)
	}

	listIDs := make(map[string]bool)
	for i := range doc.Lists {
		l := &doc.Lists[i]
		if l.ID == "" {
			p.Addf("list #%d has no id", i+1)
			continue
		}
		if listIDs[l.ID] {
			p.Addf("list %q declared twice", l.ID)
		}
		listIDs[l.ID] = true
		validateList(doc, l, &p)
	}

	sectionIDs := make(map[string]bool)
	for i := range doc.Sections {
		s := &doc.Sections[i]
		if s.ID == "" {
			p.Addf("section #%d has no id", i+1)
			continue
		}
		if sectionIDs[s.ID] {
			p.Addf("section %q declared twice", s.ID)
		}
		sectionIDs[s.ID] = true
		validateSection(doc, s, &p)
	}

	return p.Err()
}

func validateList(doc *Document, l *ValueList, p *Problems) {
	if l.Jitter < 0 {
		p.Addf("list %q: jitter range must not be negative", l.Label())
	}
	if l.Blocks != nil {
		validateBlocks(doc, l, p)
		return
	}
	if len(l.Values) == 0 {
		p.Addf("list %q has no values", l.Label())
		return
	}
	kind := l.Values[0].Kind
	for _, v := range l.Values[1:] {
		if v.Kind != kind {
			p.Addf("list %q mixes %s and %s values", l.Label(), kind, v.Kind)
			break
		}
	}
	if kind == KindMedia && l.Jitter != 0 {
		p.Addf("list %q: jitter is not allowed on media values", l.Label())
	}
}

func validateBlocks(doc *Document, l *ValueList, p *Problems) {
	b := l.Blocks
	if b.NumberOfBlocks <= 0 || b.LengthOfBlocks <= 0 {
		p.Addf("block list %q: number and length of blocks must be positive", l.Label())
	}
	if len(b.Types) != 1 && len(b.Types) != 2 {
		p.Addf("block list %q: needs one or two block types, got %d", l.Label(), len(b.Types))
		return
	}
	if b.Switch < 0 || b.Switch > 1 {
		p.Addf("block list %q: switch probability must be in [0,1]", l.Label())
	}
	if len(l.Values) > 0 {
		p.Addf("block list %q: values come from its block types and must not be listed", l.Label())
	}

	var kind ValueKind
	first := true
	for ti, bt := range b.Types {
		if bt.Switch < 0 || bt.Switch > 1 {
			p.Addf("block list %q type %d: switch probability must be in [0,1]", l.Label(), ti+1)
		}
		for _, id := range []string{bt.First, bt.Second} {
			sub, ok := doc.List(id)
			switch {
			case !ok:
				p.Addf("block list %q type %d: list %q not found", l.Label(), ti+1, id)
				continue
			case sub.Blocks != nil:
				p.Addf("block list %q type %d: list %q is itself a block list", l.Label(), ti+1, id)
				continue
			case len(sub.Values) == 0:
				p.Addf("block list %q type %d: list %q has no values", l.Label(), ti+1, id)
				continue
			case sub.Jitter != 0:
				p.Addf("block list %q type %d: list %q has jitter, which is not allowed inside block lists", l.Label(), ti+1, id)
			}
			if first {
				kind = sub.Values[0].Kind
				first = false
			} else if sub.Values[0].Kind != kind {
				p.Addf("block list %q: lists of different dimensions", l.Label())
			}
		}
	}
}

// BlockValueKind is the kind of the values a block list produces.
func BlockValueKind(doc *Document, l *ValueList) (ValueKind, bool) {
	if l.Blocks == nil {
		if len(l.Values) == 0 {
			return 0, false
		}
		return l.Values[0].Kind, true
	}
	for _, bt := range l.Blocks.Types {
		if sub, ok := doc.List(bt.First); ok && len(sub.Values) > 0 {
			return sub.Values[0].Kind, true
		}
	}
	return 0, false
}

func validateSection(doc *Document, s *Section, p *Problems) {
	if s.Repetitions < 0 {
		p.Addf("section %q: repetitions must not be negative", s.Label())
	}
	if len(s.Scenes) == 0 {
		p.Addf("section %q has no scenes", s.Label())
	}

	sceneIDs := make(map[string]bool)
	varIDs := make(map[string]bool)
	for si := range s.Scenes {
		sc := &s.Scenes[si]
		if sc.ID == "" {
			p.Addf("section %q: scene #%d has no id", s.Label(), si+1)
		} else if sceneIDs[sc.ID] {
			p.Addf("section %q: scene %q declared twice", s.Label(), sc.ID)
		}
		sceneIDs[sc.ID] = true
		if sc.Duration.Mode == DurationConstant && sc.Duration.Seconds < 0 {
			p.Addf("scene %q: duration must not be negative", sc.ID)
		}

		objIDs := make(map[string]bool)
		for oi := range sc.Objects {
			obj := &sc.Objects[oi]
			if obj.ID == "" || objIDs[obj.ID] {
				p.Addf("scene %q: object #%d needs a unique id", sc.ID, oi+1)
			}
			objIDs[obj.ID] = true
			for vi := range obj.Variables {
				v := &obj.Variables[vi]
				if v.ID == "" || varIDs[v.ID] {
					p.Addf("section %q: variable #%d of object %q needs a unique id", s.Label(), vi+1, obj.ID)
				}
				varIDs[v.ID] = true
				validateBinding(doc, obj, v, p)
			}
		}
	}

	if s.Alternate != "" && !varIDs[s.Alternate] {
		p.Addf("section %q: alternate variable %q not found", s.Label(), s.Alternate)
	}

	if tv := s.TrialValue; tv != nil {
		found := false
		for _, bv := range s.Variables() {
			if bv.ID != tv.Variable {
				continue
			}
			found = true
			if l, ok := doc.List(bv.List); ok && tv.Mode == TrialValueOther && l.Blocks == nil && len(tv.Values) != len(l.Values) {
				p.Addf("section %q: trial value needs %d values, one per value of list %q, got %d",
					s.Label(), len(l.Values), l.Label(), len(tv.Values))
			}
		}
		if !found {
			p.Addf("section %q: trial value variable %q not found", s.Label(), tv.Variable)
		}
	}

	if r := s.Response; r != nil {
		if s.SceneIndex(r.Scene) < 0 {
			p.Addf("section %q: response scene %q not found", s.Label(), r.Scene)
		}
		if r.Margin < 0 {
			p.Addf("section %q: response margin must not be negative", s.Label())
		}
	}

	for ci, c := range s.Conditions {
		if c.Kind.NeedsCount() && c.N <= 0 {
			p.Addf("section %q condition %d (%s): n must be positive", s.Label(), ci+1, c.Kind)
		}
		if (c.Kind == CondAccuracyAtLeast || c.Kind == CondAccuracyBelow) && (c.Accuracy < 0 || c.Accuracy > 1) {
			p.Addf("section %q condition %d (%s): accuracy must be in [0,1]", s.Label(), ci+1, c.Kind)
		}
	}
}

func isTiming(path string) bool {
	return path == PropStart || path == PropDuration || path == PropActivated
}

func validateBinding(doc *Document, obj *Object, v *Variable, p *Problems) {
	if v.Property == "" {
		p.Addf("variable %q has no property", v.Label())
		return
	}
	l, ok := doc.List(v.List)
	if !ok {
		// Reported by the resolver, which names the section as well.
		return
	}
	kind, ok := BlockValueKind(doc, l)
	if !ok {
		return
	}

	width := 1
	if idx, found := obj.Properties.Lookup(v.Property); found {
		node := obj.Properties.Node(idx)
		if node.Kind == PropComposite {
			p.Addf("variable %q: property %q of object %q is a group, not a value", v.Label(), v.Property, obj.ID)
			return
		}
		if node.Kind == PropSelect {
			if kind != KindMedia {
				p.Addf("variable %q: property %q of object %q takes a media reference, list %q holds %s values",
					v.Label(), v.Property, obj.ID, l.Label(), kind)
			}
			return
		}
		width = node.Kind.Components()
	} else if !isTiming(v.Property) {
		p.Addf("variable %q: object %q has no property %q", v.Label(), obj.ID, v.Property)
		return
	}

	if kind == KindMedia {
		p.Addf("variable %q: property %q of object %q is numeric, list %q holds media", v.Label(), v.Property, obj.ID, l.Label())
		return
	}
	if got := (Value{Kind: kind}).Components(); got != width {
		p.Addf("variable %q: property %q of object %q has %d components, list %q values have %d",
			v.Label(), v.Property, obj.ID, width, l.Label(), got)
	}
}
