package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/visibility"
)

// LinkResult reports a link operation. Created is false when the items were
// already linked; no entry is recorded then.
type LinkResult struct {
	EvidenceID string        `json:"evidenceId"`
	LinkedID   string        `json:"linkedId"`
	Created    bool          `json:"created"`
	Audit      audit.Receipt `json:"audit"`
}

// LinkEvidence links two items symmetrically. The items may belong to
// different cases; each involved case gets a LINK_EVIDENCE entry.
func (r *Registry) LinkEvidence(ctx context.Context, actor models.Principal, a, b string) (LinkResult, error) {
	if a == "" || b == "" {
		return LinkResult{}, apperr.Validation("both evidence ids are required")
	}
	if a == b {
		return LinkResult{}, apperr.Validation("evidence cannot be linked to itself")
	}
	ea, err := r.Visible(ctx, actor, a)
	if err != nil {
		return LinkResult{}, err
	}
	eb, err := r.Visible(ctx, actor, b)
	if err != nil {
		return LinkResult{}, err
	}
	res := LinkResult{EvidenceID: a, LinkedID: b}
	if ea.IsLinked(b) && eb.IsLinked(a) {
		return res, nil
	}
	if err := r.store.LinkEvidence(ctx, a, b); err != nil {
		return LinkResult{}, apperr.Persistence(err, "link evidence")
	}
	res.Created = true

	desc := fmt.Sprintf("Evidence %s (%s) linked with %s (%s)", ea.ID, ea.FileName, eb.ID, eb.FileName)
	res.Audit = r.ledger.Record(ctx, audit.Draft{
		CaseID:      ea.CaseID,
		EvidenceID:  ea.ID,
		Action:      models.ActionLinkEvidence,
		Actor:       actor,
		Description: desc,
		Detail:      models.AuditDetail{FileName: ea.FileName},
	})
	if eb.CaseID != ea.CaseID {
		r.ledger.Record(ctx, audit.Draft{
			CaseID:      eb.CaseID,
			EvidenceID:  eb.ID,
			Action:      models.ActionLinkEvidence,
			Actor:       actor,
			Description: desc,
			Detail:      models.AuditDetail{FileName: eb.FileName},
		})
	}
	return res, nil
}

type CorrelatedEvidence struct {
	Evidence models.Evidence `json:"evidence"`
	Depth    int             `json:"depth"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Correlation is the link neighbourhood of one evidence item.
type Correlation struct {
	RootID string               `json:"rootId"`
	Depth  int                  `json:"depth"`
	Nodes  []CorrelatedEvidence `json:"nodes"`
	Edges  []Edge               `json:"edges"`
}

// Correlate walks the link graph breadth first from id, up to depth hops.
// Items the actor may not see are neither returned nor walked through.
// A depth outside 1..MaxCorrelationDepth is clamped.
func (r *Registry) Correlate(ctx context.Context, actor models.Principal, id string, depth int) (Correlation, error) {
	if depth <= 0 || depth > r.cfg.MaxCorrelationDepth {
		depth = r.cfg.MaxCorrelationDepth
	}
	root, err := r.Visible(ctx, actor, id)
	if err != nil {
		return Correlation{}, err
	}

	out := Correlation{RootID: root.ID, Depth: depth, Nodes: []CorrelatedEvidence{{Evidence: root}}, Edges: []Edge{}}
	seen := map[string]bool{root.ID: true}
	edges := map[Edge]bool{}
	frontier := []models.Evidence{root}

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []models.Evidence
		for _, cur := range frontier {
			for _, linked := range cur.LinkedEvidenceIDs {
				if !seen[linked] {
					e, err := r.store.GetEvidence(ctx, linked)
					if err != nil || !visibility.CanView(actor, e) {
						// dangling or hidden links end the walk on this branch
						continue
					}
					seen[linked] = true
					out.Nodes = append(out.Nodes, CorrelatedEvidence{Evidence: e, Depth: d})
					next = append(next, e)
				}
				edge := Edge{From: cur.ID, To: linked}
				if edge.From > edge.To {
					edge.From, edge.To = edge.To, edge.From
				}
				edges[edge] = true
			}
		}
		frontier = next
	}

	known := map[string]bool{}
	for _, n := range out.Nodes {
		known[n.Evidence.ID] = true
	}
	for e := range edges {
		if known[e.From] && known[e.To] {
			out.Edges = append(out.Edges, e)
		}
	}
	sort.Slice(out.Edges, func(i, j int) bool {
		if out.Edges[i].From != out.Edges[j].From {
			return out.Edges[i].From < out.Edges[j].From
		}
		return out.Edges[i].To < out.Edges[j].To
	})
	return out, nil
}
