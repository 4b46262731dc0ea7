package k8s

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/dcquery/internal/log"
	"go.uber.org/zap"
	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// PodDeletionCostAnnotation tells the ReplicaSet controller which pods to delete first on scale down (lowest cost first)
const PodDeletionCostAnnotation = "controller.kubernetes.io/pod-deletion-cost"

// Deployment resizes the workers of a kubernetes Deployment
type Deployment struct {
	Name      string
	Namespace string
	// CostPort and CostPath locate the termination cost endpoint of the workers (disabled if CostPort is 0)
	CostPort   int
	CostPath   string
	clientset  kubernetes.Interface
	httpClient *http.Client
}

// New returns the Deployment, using the in-cluster configuration
func New(name, namespace string) (*Deployment, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("k8s.New: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("k8s.New: %w", err)
	}
	return NewWithClientset(name, namespace, clientset), nil
}

// NewWithClientset returns the Deployment managed by clientset
func NewWithClientset(name, namespace string, clientset kubernetes.Interface) *Deployment {
	return &Deployment{
		Name:       name,
		Namespace:  namespace,
		CostPath:   "/termination_cost",
		clientset:  clientset,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Size returns the number of replicas
func (d *Deployment) Size(ctx context.Context) (int64, error) {
	scale, err := d.clientset.AppsV1().Deployments(d.Namespace).GetScale(ctx, d.Name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("get scale of %s/%s: %w", d.Namespace, d.Name, err)
	}
	return int64(scale.Spec.Replicas), nil
}

// Resize sets the number of replicas
func (d *Deployment) Resize(ctx context.Context, newSize int64) error {
	deployments := d.clientset.AppsV1().Deployments(d.Namespace)
	scale, err := deployments.GetScale(ctx, d.Name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get scale of %s/%s: %w", d.Namespace, d.Name, err)
	}
	if int64(scale.Spec.Replicas) == newSize {
		return nil
	}
	scale.Spec.Replicas = int32(newSize)
	if _, err := deployments.UpdateScale(ctx, d.Name, scale, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update scale of %s/%s: %w", d.Namespace, d.Name, err)
	}
	return nil
}

// ScaleDown annotates the pods with their termination cost, so that the idle workers are deleted first, then resizes
func (d *Deployment) ScaleDown(ctx context.Context, newSize int64) error {
	if d.CostPort != 0 {
		if err := d.annotateDeletionCosts(ctx); err != nil {
			log.Logger(ctx).Warn("unable to set the deletion costs", zap.Error(err))
		}
	}
	return d.Resize(ctx, newSize)
}

func (d *Deployment) activePods(ctx context.Context) ([]apiv1.Pod, error) {
	deployment, err := d.clientset.AppsV1().Deployments(d.Namespace).Get(ctx, d.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get deployment %s/%s: %w", d.Namespace, d.Name, err)
	}
	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("selector of %s/%s: %w", d.Namespace, d.Name, err)
	}
	pods, err := d.clientset.CoreV1().Pods(d.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("list pods of %s/%s: %w", d.Namespace, d.Name, err)
	}
	var active []apiv1.Pod
	for _, p := range pods.Items {
		if p.DeletionTimestamp == nil && p.Status.Phase == apiv1.PodRunning && p.Status.PodIP != "" {
			active = append(active, p)
		}
	}
	return active, nil
}

func (d *Deployment) annotateDeletionCosts(ctx context.Context) error {
	pods, err := d.activePods(ctx)
	if err != nil {
		return err
	}
	for _, p := range pods {
		cost, err := d.terminationCost(ctx, p)
		if err != nil {
			log.Logger(ctx).Debug("termination cost unavailable", zap.String("pod", p.Name), zap.Error(err))
			continue
		}
		patch := fmt.Sprintf(`{"metadata":{"annotations":{%q:%q}}}`, PodDeletionCostAnnotation, strconv.FormatInt(cost, 10))
		if _, err := d.clientset.CoreV1().Pods(d.Namespace).Patch(ctx, p.Name, types.MergePatchType, []byte(patch), metav1.PatchOptions{}); err != nil {
			return fmt.Errorf("annotate pod %s: %w", p.Name, err)
		}
	}
	return nil
}

// terminationCost returns the number of milliseconds the worker has been running its current job (0 if idle)
func (d *Deployment) terminationCost(ctx context.Context, p apiv1.Pod) (int64, error) {
	url := fmt.Sprintf("http://%s:%d%s", p.Status.PodIP, d.CostPort, d.CostPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, err
	}
	cost, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid cost: %w", url, err)
	}
	if cost > int64(^uint32(0)>>1) {
		cost = int64(^uint32(0) >> 1)
	}
	return cost, nil
}
