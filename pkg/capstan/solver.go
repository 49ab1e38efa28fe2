package capstan

import (
	"fmt"
	"sort"
)

// Solver 求解器对应的 capstan 依赖和可执行 .so
type Solver struct {
	Deps []string
	SO   string
}

// commonDeps 所有镜像都需要的包
var commonDeps = []string{"osv.cli", "osv.nfs", "ompi-1.10"}

var solvers = map[string]Solver{
	"openfoam.pimplefoam":          {Deps: []string{"openfoam.pimplefoam-2.4.0"}, SO: "pimpleFoam.so"},
	"openfoam.pisofoam":            {Deps: []string{"openfoam.pisofoam-2.4.0"}, SO: "pisoFoam.so"},
	"openfoam.poroussimplefoam":    {Deps: []string{"openfoam.poroussimplefoam-2.4.0"}, SO: "poroussimpleFoam.so"},
	"openfoam.potentialfoam":       {Deps: []string{"openfoam.potentialfoam-2.4.0"}, SO: "potentialFoam.so"},
	"openfoam.rhoporoussimplefoam": {Deps: []string{"openfoam.rhoporoussimplefoam-2.4.0"}, SO: "rhoporoussimpleFoam.so"},
	"openfoam.rhosimplefoam":       {Deps: []string{"openfoam.rhosimplefoam-2.4.0"}, SO: "rhosimpleFoam.so"},
	"openfoam.simplefoam":          {Deps: []string{"openfoam.simplefoam-2.4.0"}, SO: "simpleFoam.so"},
}

// LookupSolver 查找求解器
func LookupSolver(id string) (Solver, error) {
	s, ok := solvers[id]
	if !ok {
		return Solver{}, fmt.Errorf("unknown solver %q", id)
	}
	return s, nil
}

// SolverDeps 求解器依赖加公共依赖
func SolverDeps(id string) ([]string, error) {
	s, err := LookupSolver(id)
	if err != nil {
		return nil, err
	}
	deps := make([]string, 0, len(s.Deps)+len(commonDeps))
	deps = append(deps, s.Deps...)
	return append(deps, commonDeps...), nil
}

// SolverSO 求解器在镜像 /usr/bin 下的 .so 名称
func SolverSO(id string) (string, error) {
	s, err := LookupSolver(id)
	if err != nil {
		return "", err
	}
	return s.SO, nil
}

// Solvers 支持的求解器，按名称排序
func Solvers() []string {
	ids := make([]string, 0, len(solvers))
	for id := range solvers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
