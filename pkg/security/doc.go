/*
Package security provides AES-256-GCM encryption for backend cluster
connection credentials (Slurm "user:token" pairs, Kubernetes
service-account bearer tokens) stored at rest in
types.ConnectionConfig.EncryptedToken.

SecretsManager is constructed from either an operator-supplied 32-byte
key (NewSecretsManager) or a password (NewSecretsManagerFromPassword,
which derives the key via SHA-256). When no master key is configured,
DeriveKeyFromClusterID derives a per-cluster key deterministically so
each registered cluster's credential is still encrypted under a
distinct key.

EncryptConnectionToken is what the cluster register command in
cmd/schedulerd uses to store a credential, and DecryptConnectionToken
reverses it; EncryptSecret/DecryptSecret are the lower-level primitives
they're built on.
*/
package security
