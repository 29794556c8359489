package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	jobctlerrs "github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"
)

func trainingJob() *types.Job {
	return &types.Job{
		ID:      "job-0123456789",
		Name:    "bert-finetune",
		Status:  types.JobStatusQueued,
		JobType: types.JobTypeTraining,
		ExecutorConfig: map[string]any{
			"image":   "registry/bert:latest",
			"command": []any{"python", "train.py"},
		},
	}
}

func TestKubernetesDriver_SubmitTrainingJob(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)
	job := trainingJob()

	externalID, err := d.Submit(job)
	require.NoError(t, err)
	assert.Contains(t, externalID, "job-0123456789"[:8])

	kjob, err := clientset.BatchV1().Jobs("jobs").Get(context.Background(), externalID, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "registry/bert:latest", kjob.Spec.Template.Spec.Containers[0].Image)
}

func TestKubernetesDriver_SubmitIsIdempotentOn409(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)
	job := trainingJob()

	first, err := d.Submit(job)
	require.NoError(t, err)
	second, err := d.Submit(job)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestKubernetesDriver_SubmitRejectsMissingImage(t *testing.T) {
	d := NewKubernetesDriver(fake.NewSimpleClientset(), "jobs", 5*time.Second, 5*time.Second)
	job := &types.Job{ID: "job-1", Name: "x", JobType: types.JobTypeTraining}

	_, err := d.Submit(job)
	require.Error(t, err)
}

func TestKubernetesDriver_StatusMapsBatchJob(t *testing.T) {
	clientset := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "x", Namespace: "jobs"},
		Status:     batchv1.JobStatus{Succeeded: 1},
	})
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)

	status, err := d.Status("x")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusSucceeded, status)
}

func TestKubernetesDriver_StatusFallsBackToDeployment(t *testing.T) {
	replicas := int32(2)
	clientset := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "x", Namespace: "jobs"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: 2},
	})
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)

	status, err := d.Status("x")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, status)
}

func TestKubernetesDriver_SubmitInferenceWithService(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)
	job := &types.Job{
		ID:      "infer-0123456789",
		Name:    "serve-model",
		JobType: types.JobTypeInference,
		ExecutorConfig: map[string]any{
			"image":   "registry/serve:latest",
			"replicas": 2,
			"service":  map[string]any{"port": 8080},
		},
	}

	externalID, err := d.Submit(job)
	require.NoError(t, err)

	dep, err := clientset.AppsV1().Deployments("jobs").Get(context.Background(), externalID, metav1.GetOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, *dep.Spec.Replicas)

	_, err = clientset.CoreV1().Services("jobs").Get(context.Background(), externalID, metav1.GetOptions{})
	require.NoError(t, err, "a Service should be provisioned when 'service' is configured")
}

func TestKubernetesDriver_SubmitClassifiesInvalidAsPermanent(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "jobs", func(action clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewInvalid(schema.GroupKind{Group: "batch", Kind: "Job"}, "x", nil)
	})
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)

	_, err := d.Submit(trainingJob())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jobctlerrs.ErrDriverPermanent))
}

func TestKubernetesDriver_SubmitClassifiesServiceUnavailableAsTransient(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "jobs", func(action clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServiceUnavailable("backend overloaded")
	})
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)

	_, err := d.Submit(trainingJob())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jobctlerrs.ErrDriverTransient))
}

func TestKubernetesDriver_CancelDeletesJob(t *testing.T) {
	clientset := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "x", Namespace: "jobs"},
	})
	d := NewKubernetesDriver(clientset, "jobs", 5*time.Second, 5*time.Second)

	require.NoError(t, d.Cancel("x"))
	_, err := clientset.BatchV1().Jobs("jobs").Get(context.Background(), "x", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestKubernetesDriver_CancelIsNoopWhenAlreadyGone(t *testing.T) {
	d := NewKubernetesDriver(fake.NewSimpleClientset(), "jobs", 5*time.Second, 5*time.Second)
	require.NoError(t, d.Cancel("does-not-exist"))
}

func TestKubernetesDriver_LogsReturnsSentinelWhenNoPods(t *testing.T) {
	d := NewKubernetesDriver(fake.NewSimpleClientset(), "jobs", 5*time.Second, 5*time.Second)
	got, err := d.Logs("x")
	require.NoError(t, err)
	assert.Equal(t, NoPodsFoundSentinel, got)
}
