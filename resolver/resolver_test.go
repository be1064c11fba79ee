package resolver

import "testing"

func TestParseTargetFullForm(t *testing.T) {
	got := ParseTarget("dns:///example:443")
	want := Target{Scheme: "dns", Authority: "", Endpoint: "example:443"}
	if got != want {
		t.Errorf("ParseTarget() = %+v, want %+v", got, want)
	}
}

func TestParseTargetWithAuthority(t *testing.T) {
	got := ParseTarget("etcd://my-etcd-cluster/service-name")
	want := Target{Scheme: "etcd", Authority: "my-etcd-cluster", Endpoint: "service-name"}
	if got != want {
		t.Errorf("ParseTarget() = %+v, want %+v", got, want)
	}
}

func TestParseTargetPlainEndpoint(t *testing.T) {
	got := ParseTarget("localhost:8080")
	want := Target{Endpoint: "localhost:8080"}
	if got != want {
		t.Errorf("ParseTarget() = %+v, want %+v", got, want)
	}
}
