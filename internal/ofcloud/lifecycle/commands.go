package lifecycle

import "fmt"

// CaseDir 虚拟机内 case 的挂载点
const CaseDir = "/case"

// DecomposeCommand 并行运行前的网格分解
func DecomposeCommand() string {
	return "/usr/bin/decomposePar -case " + CaseDir
}

// SolverCommand 并行度大于 1 时通过 mpirun 启动
func SolverCommand(solverSO string, parallelisation int) string {
	if parallelisation > 1 {
		return fmt.Sprintf("/usr/bin/mpirun -n %d --allow-run-as-root /usr/bin/%s -parallel -case %s",
			parallelisation, solverSO, CaseDir)
	}
	return fmt.Sprintf("/usr/bin/%s -case %s", solverSO, CaseDir)
}

// ReconstructCommand 并行运行后合并结果
func ReconstructCommand() string {
	return "/usr/bin/reconstructPar -case " + CaseDir
}

// MountSource 虚拟机内挂载使用的 NFS 地址
func MountSource(nfsAddress, nfsCaseLocation string) string {
	return fmt.Sprintf("nfs://%s%s", nfsAddress, nfsCaseLocation)
}

type envVar struct {
	name  string
	value string
}

// environment 求解器运行需要的环境变量，按设置顺序
func (l *Lifecycle) environment(instanceName string) []envVar {
	return []envVar{
		{name: "OPENFOAM_CASE", value: fmt.Sprintf("%s-%s", l.opts.UniqueServerName, instanceName)},
		{name: "TENANT", value: l.opts.Tenant},
		{name: "WM_PROJECT_DIR", value: "/openfoam"},
		{name: "LD_LIBRARY_PATH", value: "/usr/bin/"},
		{name: "PATH", value: "/usr/bin/"},
		{name: "MPI_BUFFER_SIZE", value: "1000000"},
	}
}
