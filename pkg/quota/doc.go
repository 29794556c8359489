/*
Package quota implements admission and accounting: single-tier
project quotas (LocalProvider, KubernetesProvider, SlurmProvider, all
satisfying Provider) and the two-tier VDCManager used only when VDC
routing is enabled. Check is a read-only projection; Reserve is the
sole authority on admission and is atomic against the store — callers
must not treat a true Check as a guarantee that Reserve will succeed.
*/
package quota
