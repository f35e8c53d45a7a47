package models

import "testing"

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{ModuleKey("/r/a.py"), "module:/r/a.py"},
		{ClassKey("/r/a.py", "Outer.Inner"), "class:/r/a.py:Outer.Inner"},
		{FunctionKey("/r/a.py", "A.__init__@3"), "function:/r/a.py:A.__init__@3"},
		{VariableKey("/r/a.py", "A.x"), "variable:/r/a.py:A.x"},
		{ParentKey("/r/a.py", ParentRef{}), "module:/r/a.py"},
		{ParentKey("/r/a.py", ParentRef{Kind: KindClass, ID: "A"}), "class:/r/a.py:A"},
		{ParentKey("/r/a.py", ParentRef{Kind: KindFunction, ID: "f@1"}), "function:/r/a.py:f@1"},
		{NewStub(StubModule, "os.path").Key, "external:module:os.path"},
		{NewStub(StubSymbol, "abc.ABC").Key, "external:symbol:abc.ABC"},
		{NewStub(StubUnresolved, "Base").Key, "external:unresolved:Base"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestModulePackage(t *testing.T) {
	tests := []struct {
		mod  Module
		want string
	}{
		{Module{Name: "pkg.sub.mod"}, "pkg.sub"},
		{Module{Name: "pkg.sub", IsPackage: true}, "pkg.sub"},
		{Module{Name: "top"}, ""},
		{Module{Name: RootPackageName, IsPackage: true}, ""},
	}
	for _, tt := range tests {
		if got := tt.mod.Package(); got != tt.want {
			t.Errorf("Package(%q) = %q, want %q", tt.mod.Name, got, tt.want)
		}
	}
}
