// Package tessellate walks a drawing database and produces triangle meshes
// for its solid payloads using a geometry kernel. One mesh is produced per
// placed solid, or a single mesh when merging.
package tessellate

import (
	"fmt"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/chazu/blockwalk/pkg/kernel"
	"github.com/chazu/blockwalk/pkg/traverse"
	"github.com/sirupsen/logrus"
)

// MergedPartName names the single mesh produced by Options.Merge.
const MergedPartName = "merged"

// Options tune Tessellate.
type Options struct {
	Resolution blockdb.Resolution
	// Merge unions every solid into one mesh.
	Merge bool
}

// collector places each solid in root space as it is visited.
type collector struct {
	*traverse.Dispatcher[struct{}]

	k      kernel.Kernel
	solids []placed
}

type placed struct {
	name  string
	solid kernel.Solid
}

func newCollector(k kernel.Kernel) *collector {
	c := &collector{k: k}
	c.Dispatcher = traverse.Restrict[*blockdb.Solid](
		traverse.NewDispatcher[struct{}]().Handle(blockdb.TypeSolid, c.place),
	)
	return c
}

func (c *collector) place(s *traverse.Stack[struct{}], n *blockdb.Node, e blockdb.Entity) error {
	ks, err := Build(c.k, e.(*blockdb.Solid))
	if err != nil {
		return fmt.Errorf("tessellate: node %s: %w", n.ID.Short(), err)
	}
	world, err := s.Transform()
	if err != nil {
		world = geom.Identity()
	}
	path, _ := s.Path()
	c.solids = append(c.solids, placed{
		name:  kernel.PartName(path, n.ID.Short()),
		solid: c.k.Transform(ks, world),
	})
	return nil
}

// Build creates the kernel solid for sol, placed by sol's own matrix.
func Build(k kernel.Kernel, sol *blockdb.Solid) (kernel.Solid, error) {
	var ks kernel.Solid
	switch sol.Shape {
	case blockdb.ShapeBox:
		if sol.Size.X <= 0 || sol.Size.Y <= 0 || sol.Size.Z <= 0 {
			return nil, fmt.Errorf("box has non-positive size %v", sol.Size)
		}
		ks = k.Box(sol.Size.X, sol.Size.Y, sol.Size.Z)
	case blockdb.ShapeCylinder:
		if sol.Size.X <= 0 || sol.Size.Z <= 0 {
			return nil, fmt.Errorf("cylinder has non-positive radius or height %v", sol.Size)
		}
		ks = k.Cylinder(sol.Size.Z, sol.Size.X)
	default:
		return nil, fmt.Errorf("unsupported solid shape %v", sol.Shape)
	}
	return k.Transform(ks, sol.Placement), nil
}

// Tessellate walks roots and produces triangle meshes for every solid using
// the provided geometry kernel. The tessellator never mutates the store.
func Tessellate(store blockdb.Store, roots []blockdb.NodeID, k kernel.Kernel, opts Options) ([]*kernel.Mesh, error) {
	c := newCollector(k)
	t := traverse.New[struct{}](store, c, traverse.WithResolution(opts.Resolution))
	if err := t.Visit(roots, true); err != nil {
		return nil, fmt.Errorf("tessellate: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"solids": len(c.solids),
		"frames": t.Stats().Frames,
		"merge":  opts.Merge,
	}).Debug("tessellate: solids placed")

	if len(c.solids) == 0 {
		return nil, nil
	}

	if opts.Merge {
		merged := c.solids[0].solid
		for _, p := range c.solids[1:] {
			merged = k.Union(merged, p.solid)
		}
		mesh, err := k.ToMesh(merged)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for merged solid: %w", err)
		}
		mesh.PartName = MergedPartName
		return []*kernel.Mesh{mesh}, nil
	}

	meshes := make([]*kernel.Mesh, 0, len(c.solids))
	for _, p := range c.solids {
		mesh, err := k.ToMesh(p.solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for %s: %w", p.name, err)
		}
		mesh.PartName = p.name
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}
