package quota

import (
	"context"
	"testing"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestKubernetesProvider_GetQuotaMissingReturnsNil(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	p := NewKubernetesProvider(clientset, "jobs")

	snap, err := p.GetQuota("proj-1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestKubernetesProvider_CreateThenGetQuota(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	p := NewKubernetesProvider(clientset, "jobs")

	require.NoError(t, p.CreateResourceQuota("proj-1", resources.New(4, 8, 1)))

	snap, err := p.GetQuota("proj-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.InDelta(t, 4.0, snap.Limits.CPUFloat(), 1e-6)
	assert.InDelta(t, 8.0, snap.Limits.MemoryFloatGiB(), 0.01)
	assert.Equal(t, int64(1), snap.Limits.GPUCount)
}

func TestKubernetesProvider_CreateIsIdempotent(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	p := NewKubernetesProvider(clientset, "jobs")

	require.NoError(t, p.CreateResourceQuota("proj-1", resources.New(4, 8, 1)))
	require.NoError(t, p.CreateResourceQuota("proj-1", resources.New(4, 8, 1)), "re-creating an existing ResourceQuota must be idempotent success")
}

func TestKubernetesProvider_CheckUsesUsedAndLimits(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: "project-proj-1", Namespace: "jobs"},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				resourceCPURequests: resource.MustParse("4"),
				resourceMemRequests: resource.MustParse("8Gi"),
			},
		},
		Status: corev1.ResourceQuotaStatus{
			Used: corev1.ResourceList{
				resourceCPURequests: resource.MustParse("3"),
				resourceMemRequests: resource.MustParse("7Gi"),
			},
		},
	})
	p := NewKubernetesProvider(clientset, "jobs")

	ok, err := p.Check("proj-1", resources.New(0.5, 0.5, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Check("proj-1", resources.New(2, 0, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok, "3+2=5 exceeds the 4 CPU hard limit")
}

func TestKubernetesProvider_ReserveAndReleaseAreNoOps(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	p := NewKubernetesProvider(clientset, "jobs")
	require.NoError(t, p.CreateResourceQuota("proj-1", resources.New(4, 8, 1)))

	ok, err := p.Reserve("proj-1", resources.New(1, 1, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Release("proj-1", resources.New(1, 1, 0), types.JobTypeTraining))

	// Used is untouched by Reserve/Release: Kubernetes itself owns Status.Used.
	rq, err := clientset.CoreV1().ResourceQuotas("jobs").Get(context.Background(), "project-proj-1", metav1.GetOptions{})
	require.NoError(t, err)
	used, ok := rq.Status.Used[resourceCPURequests]
	assert.True(t, !ok || used.IsZero())
}
