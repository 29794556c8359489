package driver

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/types"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
)

const (
	defaultBackoffLimit          int32 = 3
	defaultTTLSecondsAfterFinish int32 = 86400
)

// KubernetesDriver submits and tracks jobs against a Kubernetes
// cluster: a batchv1.Job for TRAINING, an appsv1.Deployment (+
// optional Service) for INFERENCE, and a ConfigMap-backed controller
// Job for WORKFLOW.
type KubernetesDriver struct {
	clientset     kubernetes.Interface
	namespace     string
	readTimeout   time.Duration
	submitTimeout time.Duration
}

// NewKubernetesDriver builds a driver against clientset. readTimeout
// bounds Status/Cancel/Metrics/Logs calls (Get/List/Delete); submitTimeout
// bounds Submit's Create calls. Both come from
// config.Config.DriverReadTimeout/DriverSubmitTimeout.
func NewKubernetesDriver(clientset kubernetes.Interface, namespace string, readTimeout, submitTimeout time.Duration) *KubernetesDriver {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	return &KubernetesDriver{
		clientset:     clientset,
		namespace:     namespace,
		readTimeout:   readTimeout,
		submitTimeout: submitTimeout,
	}
}

func (d *KubernetesDriver) submitCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.submitTimeout)
}

func (d *KubernetesDriver) readCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.readTimeout)
}

// classifySubmitError wraps a Create call's error with errs.ErrDriverPermanent
// or errs.ErrDriverTransient so the orchestrator can tell a rejected spec
// (bad image reference, quota-admission webhook denial, RBAC) from a
// backend hiccup it should retry. AlreadyExists is handled by callers
// before this is reached, so it is not classified here.
func classifySubmitError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case apierrors.IsInvalid(err),
		apierrors.IsForbidden(err),
		apierrors.IsBadRequest(err),
		apierrors.IsMethodNotSupported(err),
		apierrors.IsNotAcceptable(err),
		apierrors.IsUnsupportedMediaType(err),
		apierrors.IsRequestEntityTooLargeError(err):
		return fmt.Errorf("kubernetes driver: %s: %w: %v", op, errs.ErrDriverPermanent, err)
	case apierrors.IsConflict(err) && !apierrors.IsAlreadyExists(err):
		return fmt.Errorf("kubernetes driver: %s: %w: %v", op, errs.ErrDriverPermanent, err)
	case apierrors.IsTimeout(err),
		apierrors.IsServerTimeout(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err),
		apierrors.IsTooManyRequests(err):
		return fmt.Errorf("kubernetes driver: %s: %w: %v", op, errs.ErrDriverTransient, err)
	default:
		return fmt.Errorf("kubernetes driver: %s: %w", op, err)
	}
}

func (d *KubernetesDriver) Submit(job *types.Job) (string, error) {
	switch job.JobType {
	case types.JobTypeTraining:
		return d.submitTrainingJob(job)
	case types.JobTypeInference:
		return d.submitInferenceDeployment(job)
	case types.JobTypeWorkflow:
		return d.submitWorkflow(job)
	default:
		return "", fmt.Errorf("kubernetes driver: unsupported job type %q", job.JobType)
	}
}

func (d *KubernetesDriver) submitTrainingJob(job *types.Job) (string, error) {
	if err := RequireConfig(job, "image"); err != nil {
		return "", err
	}
	name := ExternalName(job)

	container, err := d.buildContainer(job)
	if err != nil {
		return "", err
	}

	backoffLimit := int32(intField(job.ExecutorConfig, "backoff_limit", int(defaultBackoffLimit)))
	ttl := int32(intField(job.ExecutorConfig, "ttl_seconds_after_finished", int(defaultTTLSecondsAfterFinish)))

	kjob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.namespace,
			Labels:    map[string]string{"job-id": job.ID, "project-id": job.ProjectID},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"job-name": name},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers:    []corev1.Container{container},
					NodeSelector:  stringMapField(job.ExecutorConfig, "node_selector"),
					Tolerations:   buildTolerations(job.ExecutorConfig),
					Volumes:       buildVolumes(job.ExecutorConfig),
				},
			},
		},
	}

	ctx, cancel := d.submitCtx()
	defer cancel()
	_, err = d.clientset.BatchV1().Jobs(d.namespace).Create(ctx, kjob, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return name, nil
	}
	if err != nil {
		return "", classifySubmitError(fmt.Sprintf("create job %s/%s", d.namespace, name), err)
	}
	return name, nil
}

func (d *KubernetesDriver) submitInferenceDeployment(job *types.Job) (string, error) {
	if err := RequireConfig(job, "image"); err != nil {
		return "", err
	}
	name := ExternalName(job)

	container, err := d.buildContainer(job)
	if err != nil {
		return "", err
	}

	replicas := int32(intField(job.ExecutorConfig, "replicas", 1))
	selector := map[string]string{"job-name": name}

	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.namespace,
			Labels:    map[string]string{"job-id": job.ID, "project-id": job.ProjectID},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: selector},
				Spec: corev1.PodSpec{
					Containers:   []corev1.Container{container},
					NodeSelector: stringMapField(job.ExecutorConfig, "node_selector"),
					Tolerations:  buildTolerations(job.ExecutorConfig),
					Volumes:      buildVolumes(job.ExecutorConfig),
				},
			},
		},
	}

	ctx, cancel := d.submitCtx()
	defer cancel()
	_, err = d.clientset.AppsV1().Deployments(d.namespace).Create(ctx, dep, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return "", classifySubmitError(fmt.Sprintf("create deployment %s/%s", d.namespace, name), err)
	}

	if svcCfg, ok := job.ExecutorConfig["service"].(map[string]any); ok {
		port := intField(svcCfg, "port", 80)
		targetPort := intField(svcCfg, "target_port", port)
		svc := &corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: d.namespace},
			Spec: corev1.ServiceSpec{
				Selector: selector,
				Ports: []corev1.ServicePort{{
					Port:       int32(port),
					TargetPort: intstr.FromInt(targetPort),
				}},
			},
		}
		svcCtx, svcCancel := d.submitCtx()
		defer svcCancel()
		_, err = d.clientset.CoreV1().Services(d.namespace).Create(svcCtx, svc, metav1.CreateOptions{})
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return "", classifySubmitError(fmt.Sprintf("create service %s/%s", d.namespace, name), err)
		}
	}

	return name, nil
}

// submitWorkflow emits a ConfigMap holding the workflow's template
// definitions and a controller Job that reads it and sequences
// sub-steps. This is a deliberately simplified stand-in; an
// implementer targeting a real DAG engine (e.g. Argo Workflows) would
// replace this with a native Workflow object.
func (d *KubernetesDriver) submitWorkflow(job *types.Job) (string, error) {
	if err := RequireConfig(job, "templates", "controller_image"); err != nil {
		return "", err
	}
	name := ExternalName(job)

	templates := fmt.Sprintf("%v", job.ExecutorConfig["templates"])
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: d.namespace},
		Data:       map[string]string{"workflow.json": templates},
	}
	cmCtx, cmCancel := d.submitCtx()
	defer cmCancel()
	_, err := d.clientset.CoreV1().ConfigMaps(d.namespace).Create(cmCtx, cm, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return "", classifySubmitError(fmt.Sprintf("create workflow configmap %s/%s", d.namespace, name), err)
	}

	controllerImage, _ := stringField(job.ExecutorConfig, "controller_image")
	backoffLimit := defaultBackoffLimit
	ttl := defaultTTLSecondsAfterFinish
	kjob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: d.namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"job-name": name}},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    "controller",
						Image:   controllerImage,
						Command: []string{"/bin/sh", "-c", "workflow-controller --config=/workflow/workflow.json"},
						VolumeMounts: []corev1.VolumeMount{{
							Name:      "workflow",
							MountPath: "/workflow",
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: "workflow",
						VolumeSource: corev1.VolumeSource{
							ConfigMap: &corev1.ConfigMapVolumeSource{
								LocalObjectReference: corev1.LocalObjectReference{Name: name},
							},
						},
					}},
				},
			},
		},
	}
	jobCtx, jobCancel := d.submitCtx()
	defer jobCancel()
	_, err = d.clientset.BatchV1().Jobs(d.namespace).Create(jobCtx, kjob, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return name, nil
	}
	if err != nil {
		return "", classifySubmitError(fmt.Sprintf("create workflow controller job %s/%s", d.namespace, name), err)
	}
	return name, nil
}

func (d *KubernetesDriver) buildContainer(job *types.Job) (corev1.Container, error) {
	image, _ := stringField(job.ExecutorConfig, "image")
	container := corev1.Container{
		Name:         "main",
		Image:        image,
		Command:      stringSliceField(job.ExecutorConfig, "command"),
		Args:         stringSliceField(job.ExecutorConfig, "args"),
		Env:          buildEnv(job.ExecutorConfig),
		VolumeMounts: buildVolumeMounts(job.ExecutorConfig),
	}

	request, err := ExtractRequest(job)
	if err != nil {
		return corev1.Container{}, err
	}
	if !request.IsZero() {
		reqList := corev1.ResourceList{
			corev1.ResourceCPU:    request.CPUCores,
			corev1.ResourceMemory: memGiBQuantity(request.MemoryFloatGiB()),
		}
		if request.GPUCount > 0 {
			reqList["nvidia.com/gpu"] = *resource.NewQuantity(request.GPUCount, resource.DecimalSI)
		}
		container.Resources = corev1.ResourceRequirements{Requests: reqList, Limits: reqList}
	}
	return container, nil
}

func memGiBQuantity(gib float64) resource.Quantity {
	return *resource.NewQuantity(int64(gib*(1<<30)), resource.BinarySI)
}

func buildEnv(cfg map[string]any) []corev1.EnvVar {
	raw, ok := cfg["env"].([]any)
	if !ok {
		return nil
	}
	var out []corev1.EnvVar
	for _, e := range raw {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name, _ := stringField(entry, "name")
		if name == "" {
			continue
		}
		if value, ok := stringField(entry, "value"); ok {
			out = append(out, corev1.EnvVar{Name: name, Value: value})
			continue
		}
		if ref, ok := entry["secretRef"].(map[string]any); ok {
			secretName, _ := stringField(ref, "name")
			secretKey, _ := stringField(ref, "key")
			out = append(out, corev1.EnvVar{
				Name: name,
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
						Key:                  secretKey,
					},
				},
			})
		}
	}
	return out
}

func buildVolumes(cfg map[string]any) []corev1.Volume {
	raw, ok := cfg["volumes"].([]any)
	if !ok {
		return nil
	}
	var out []corev1.Volume
	for _, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := stringField(entry, "name")
		claim, _ := stringField(entry, "claim_name")
		if name == "" || claim == "" {
			continue
		}
		out = append(out, corev1.Volume{
			Name: name,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: claim},
			},
		})
	}
	return out
}

func buildVolumeMounts(cfg map[string]any) []corev1.VolumeMount {
	raw, ok := cfg["volumes"].([]any)
	if !ok {
		return nil
	}
	var out []corev1.VolumeMount
	for _, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := stringField(entry, "name")
		mountPath, _ := stringField(entry, "mount_path")
		if name == "" || mountPath == "" {
			continue
		}
		out = append(out, corev1.VolumeMount{Name: name, MountPath: mountPath})
	}
	return out
}

func buildTolerations(cfg map[string]any) []corev1.Toleration {
	raw, ok := cfg["tolerations"].([]any)
	if !ok {
		return nil
	}
	var out []corev1.Toleration
	for _, t := range raw {
		entry, ok := t.(map[string]any)
		if !ok {
			continue
		}
		key, _ := stringField(entry, "key")
		operator, _ := stringField(entry, "operator")
		value, _ := stringField(entry, "value")
		effect, _ := stringField(entry, "effect")
		out = append(out, corev1.Toleration{
			Key:      key,
			Operator: corev1.TolerationOperator(operator),
			Value:    value,
			Effect:   corev1.TaintEffect(effect),
		})
	}
	return out
}

func (d *KubernetesDriver) Status(externalID string) (types.JobStatus, error) {
	ctx, cancel := d.readCtx()
	defer cancel()

	kjob, err := d.clientset.BatchV1().Jobs(d.namespace).Get(ctx, externalID, metav1.GetOptions{})
	if err == nil {
		return statusFromBatchJob(kjob), nil
	}
	if !apierrors.IsNotFound(err) {
		return "", fmt.Errorf("kubernetes driver: get job %s/%s: %w", d.namespace, externalID, err)
	}

	dep, err := d.clientset.AppsV1().Deployments(d.namespace).Get(ctx, externalID, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("kubernetes driver: get job or deployment %s/%s: %w", d.namespace, externalID, err)
	}
	return statusFromDeployment(dep), nil
}

func statusFromBatchJob(j *batchv1.Job) types.JobStatus {
	switch {
	case j.Status.Succeeded > 0:
		return types.JobStatusSucceeded
	case j.Status.Failed > 0:
		return types.JobStatusFailed
	case j.Status.Active > 0:
		return types.JobStatusRunning
	default:
		return types.JobStatusPending
	}
}

func statusFromDeployment(dep *appsv1.Deployment) types.JobStatus {
	switch {
	case dep.Spec.Replicas != nil && dep.Status.ReadyReplicas == *dep.Spec.Replicas:
		return types.JobStatusRunning
	case dep.Status.UnavailableReplicas > 0:
		return types.JobStatusPending
	default:
		return types.JobStatusQueued
	}
}

func (d *KubernetesDriver) Cancel(externalID string) error {
	background := metav1.DeletePropagationBackground
	opts := metav1.DeleteOptions{PropagationPolicy: &background}

	ctx, cancel := d.readCtx()
	defer cancel()

	err := d.clientset.BatchV1().Jobs(d.namespace).Delete(ctx, externalID, opts)
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("kubernetes driver: delete job %s/%s: %w", d.namespace, externalID, err)
	}

	err = d.clientset.AppsV1().Deployments(d.namespace).Delete(ctx, externalID, opts)
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("kubernetes driver: delete deployment %s/%s: %w", d.namespace, externalID, err)
	}
	return nil
}

func (d *KubernetesDriver) Logs(externalID string) (string, error) {
	pods, err := d.listPods(externalID, "job-name="+externalID)
	if err != nil {
		return "", err
	}
	if len(pods) == 0 {
		pods, err = d.listPods(externalID, "app="+externalID)
		if err != nil {
			return "", err
		}
	}
	if len(pods) == 0 {
		return NoPodsFoundSentinel, nil
	}

	ctx, cancel := d.readCtx()
	defer cancel()

	tailLines := int64(1000)
	req := d.clientset.CoreV1().Pods(d.namespace).GetLogs(pods[0].Name, &corev1.PodLogOptions{TailLines: &tailLines})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("kubernetes driver: stream logs for pod %s/%s: %w", d.namespace, pods[0].Name, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("kubernetes driver: read logs for pod %s/%s: %w", d.namespace, pods[0].Name, err)
	}
	return string(data), nil
}

func (d *KubernetesDriver) listPods(externalID, labelSelector string) ([]corev1.Pod, error) {
	ctx, cancel := d.readCtx()
	defer cancel()
	list, err := d.clientset.CoreV1().Pods(d.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("kubernetes driver: list pods %s/%s: %w", d.namespace, externalID, err)
	}
	return list.Items, nil
}

func (d *KubernetesDriver) Metrics(externalID string) (map[string]any, error) {
	status, err := d.Status(externalID)
	if err != nil {
		return nil, err
	}
	metrics := map[string]any{"status": string(status)}

	ctx, cancel := d.readCtx()
	defer cancel()

	kjob, err := d.clientset.BatchV1().Jobs(d.namespace).Get(ctx, externalID, metav1.GetOptions{})
	if err == nil {
		metrics["active"] = kjob.Status.Active
		metrics["succeeded"] = kjob.Status.Succeeded
		metrics["failed"] = kjob.Status.Failed
		return metrics, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("kubernetes driver: get job %s/%s: %w", d.namespace, externalID, err)
	}

	dep, err := d.clientset.AppsV1().Deployments(d.namespace).Get(ctx, externalID, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubernetes driver: get deployment %s/%s: %w", d.namespace, externalID, err)
	}
	metrics["ready_replicas"] = dep.Status.ReadyReplicas
	metrics["unavailable_replicas"] = dep.Status.UnavailableReplicas
	return metrics, nil
}
