package seal

import (
	"github.com/tuneinsight/lattigo/v4/bfv"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// KeyPair holds a secret/public key pair for one party. In APSI's
// protocol only the receiver ever generates one: the receiver encrypts
// its query and decrypts results; the sender only ever operates on
// ciphertexts and a relinearization key it is handed.
type KeyPair struct {
	Secret *rlwe.SecretKey
	Public *rlwe.PublicKey
}

// RelinKey is the relinearization key the receiver hands the sender so
// that ciphertext-ciphertext products (PowersDag internal nodes,
// Paterson-Stockmeyer combination) can be brought back down to a
// two-polynomial ciphertext.
type RelinKey = rlwe.RelinearizationKey

// GenKeyPair generates a fresh secret/public key pair for params.
func GenKeyPair(params Params) KeyPair {
	kgen := rlwe.NewKeyGenerator(params.Parameters.Parameters)
	sk, pk := kgen.GenKeyPairNew()
	return KeyPair{Secret: sk, Public: pk}
}

// GenRelinKey derives the relinearization key from a secret key.
func GenRelinKey(params Params, sk *rlwe.SecretKey) *RelinKey {
	kgen := rlwe.NewKeyGenerator(params.Parameters.Parameters)
	return kgen.GenRelinearizationKeyNew(sk)
}

// Encryptor encrypts plaintexts under a public key.
type Encryptor struct {
	inner rlwe.Encryptor
}

// NewEncryptor builds an Encryptor for the given public key.
func NewEncryptor(params Params, pk *rlwe.PublicKey) *Encryptor {
	return &Encryptor{inner: bfv.NewEncryptor(params.Parameters, pk)}
}

// EncryptNew encrypts a plaintext into a fresh ciphertext.
func (e *Encryptor) EncryptNew(pt *Plaintext) *Ciphertext {
	return e.inner.EncryptNew(pt)
}

// Decryptor decrypts ciphertexts under a secret key.
type Decryptor struct {
	inner rlwe.Decryptor
}

// NewDecryptor builds a Decryptor for the given secret key.
func NewDecryptor(params Params, sk *rlwe.SecretKey) *Decryptor {
	return &Decryptor{inner: bfv.NewDecryptor(params.Parameters, sk)}
}

// DecryptNew decrypts a ciphertext into a fresh plaintext.
func (d *Decryptor) DecryptNew(ct *Ciphertext) *Plaintext {
	return d.inner.DecryptNew(ct)
}
