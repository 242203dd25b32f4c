package config

type WorkerKeyStruct struct {
	IssueCertificatesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	IssueCertificatesQueue: "issue_certificates_queue",
}
