package graph

// LinkReport summarises one Link pass.
type LinkReport struct {
	Linked     int      // operands or terms rewritten to a node reference
	Unresolved []string // names still unbound after the pass, in arena order
}

// Link rewrites every bare name operand and every pending expression term
// into a reference to the node currently registered under that name. It is
// a single pass: references already bound are left untouched, so calling
// it again only binds names registered since the previous call.
func (r *Registry) Link() LinkReport {
	var report LinkReport
	for i := range r.nodes {
		op := r.nodes[i].Operand()
		switch op.Kind {
		case OperandName:
			if id, ok := r.byName[op.Name]; ok {
				*op = Ref(id, op.Name)
				report.Linked++
			} else {
				report.Unresolved = append(report.Unresolved, op.Name)
			}
		case OperandExpr:
			for j, t := range op.Terms {
				if t.IsConst() || t.Bound() {
					continue
				}
				if id, ok := r.byName[t.Name]; ok {
					op.Terms[j].Ref = id
					report.Linked++
				} else {
					report.Unresolved = append(report.Unresolved, t.Name)
				}
			}
		}
	}
	return report
}
