package quota

import (
	"context"
	"fmt"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	resourceCPURequests = corev1.ResourceName("requests.cpu")
	resourceMemRequests = corev1.ResourceName("requests.memory")
	resourceGPURequests = corev1.ResourceName("requests.nvidia.com/gpu")
	resourceCPULimits   = corev1.ResourceName("limits.cpu")
	resourceMemLimits   = corev1.ResourceName("limits.memory")
)

// KubernetesProvider reads project quotas from namespaced
// ResourceQuota objects. Kubernetes itself tracks usage as pods are
// admitted and terminated, so Reserve and Release are no-ops; the
// provider's job is projection (GetQuota/Check) and the
// administrative CreateResourceQuota that provisions the object.
type KubernetesProvider struct {
	clientset kubernetes.Interface
	namespace string
}

// NewKubernetesProvider returns a Provider reading ResourceQuota
// objects from namespace via clientset.
func NewKubernetesProvider(clientset kubernetes.Interface, namespace string) *KubernetesProvider {
	return &KubernetesProvider{clientset: clientset, namespace: namespace}
}

func quotaName(projectID string) string { return "project-" + projectID }

func (p *KubernetesProvider) GetQuota(projectID string) (*Snapshot, error) {
	rq, err := p.clientset.CoreV1().ResourceQuotas(p.namespace).Get(context.Background(), quotaName(projectID), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quota: read ResourceQuota %s/%s: %w", p.namespace, quotaName(projectID), err)
	}

	limits, err := resourcesFromQuantities(rq.Spec.Hard, resourceCPURequests, resourceMemRequests, resourceGPURequests)
	if err != nil {
		return nil, fmt.Errorf("quota: parse ResourceQuota hard limits: %w", err)
	}
	used, err := resourcesFromQuantities(rq.Status.Used, resourceCPURequests, resourceMemRequests, resourceGPURequests)
	if err != nil {
		return nil, fmt.Errorf("quota: parse ResourceQuota used: %w", err)
	}

	return &Snapshot{Limits: limits, Used: used}, nil
}

func (p *KubernetesProvider) Check(projectID string, request resources.Resources, jobType types.JobType) (bool, error) {
	snap, err := p.GetQuota(projectID)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return true, nil
	}
	return resources.Fits(snap.Used.Add(request), snap.Limits), nil
}

// Reserve is a no-op: Kubernetes admits the pod and updates
// ResourceQuota.Status.Used itself.
func (p *KubernetesProvider) Reserve(projectID string, request resources.Resources, jobType types.JobType) (bool, error) {
	return p.Check(projectID, request, jobType)
}

// Release is a no-op: Kubernetes releases quota when the pod
// terminates.
func (p *KubernetesProvider) Release(projectID string, request resources.Resources, jobType types.JobType) error {
	return nil
}

func (p *KubernetesProvider) Sync() error { return nil }

// CreateResourceQuota provisions a namespaced ResourceQuota for a
// project, with a 2x burst allowance on limits over requests —
// matching the quota the original scheduler provisioned.
func (p *KubernetesProvider) CreateResourceQuota(projectID string, limits resources.Resources) error {
	cpu := limits.CPUCores.DeepCopy()
	mem := limits.MemoryGiB.DeepCopy()

	cpuBurst := cpu.DeepCopy()
	cpuBurst.Add(cpu)
	memBurst := mem.DeepCopy()
	memBurst.Add(mem)

	rq := &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      quotaName(projectID),
			Namespace: p.namespace,
			Labels:    map[string]string{"project-id": projectID},
		},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				resourceCPURequests: cpu,
				resourceMemRequests: memGiBToQuantity(mem),
				resourceGPURequests: *resource.NewQuantity(limits.GPUCount, resource.DecimalSI),
				resourceCPULimits:   cpuBurst,
				resourceMemLimits:   memGiBToQuantity(memBurst),
			},
		},
	}

	_, err := p.clientset.CoreV1().ResourceQuotas(p.namespace).Create(context.Background(), rq, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("quota: create ResourceQuota %s/%s: %w", p.namespace, quotaName(projectID), err)
	}
	return nil
}

// memGiBToQuantity renders a GiB-denominated quantity (as
// resources.Resources stores memory: its value is the number of GiB) as
// a Gi-suffixed Quantity.
func memGiBToQuantity(q resource.Quantity) resource.Quantity {
	gib := q.AsApproximateFloat64()
	return *resource.NewQuantity(int64(gib*(1<<30)), resource.BinarySI)
}

func resourcesFromQuantities(list corev1.ResourceList, cpuKey, memKey, gpuKey corev1.ResourceName) (resources.Resources, error) {
	var cpuStr, memStr, gpuStr string
	if q, ok := list[cpuKey]; ok {
		cpuStr = q.String()
	}
	if q, ok := list[memKey]; ok {
		memStr = q.String()
	}
	if q, ok := list[gpuKey]; ok {
		gpuStr = q.String()
	}

	r := resources.Zero()
	if cpuStr != "" {
		q, err := resources.ParseCPU(cpuStr)
		if err != nil {
			return resources.Resources{}, err
		}
		r.CPUCores = q
	}
	if memStr != "" {
		q, err := resources.ParseMemory(memStr)
		if err != nil {
			return resources.Resources{}, err
		}
		r.MemoryGiB = q
	}
	if gpuStr != "" {
		n, err := resources.ParseGPU(gpuStr)
		if err != nil {
			return resources.Resources{}, err
		}
		r.GPUCount = n
	}
	return r, nil
}
