package jsruntime

import (
	"testing"
)

// Simple JS code for basic benchmark
const simpleJS = `
var result = 0;
for (var i = 0; i < 1000; i++) {
	result += i;
}
result.toString();
`

// Builds a small element tree and renders it to markup
const complexJS = `
var props = { count: 42, name: "Test" };

function createElement(tag, props, children) {
	return {
		tag: tag,
		props: props || {},
		children: children || []
	};
}

function renderToString(element) {
	if (typeof element === 'string') return element;
	if (typeof element === 'number') return element.toString();

	var attrs = '';
	for (var key in element.props) {
		attrs += ' ' + key + '="' + element.props[key] + '"';
	}

	var childStr = '';
	for (var i = 0; i < element.children.length; i++) {
		childStr += renderToString(element.children[i]);
	}

	return '<' + element.tag + attrs + '>' + childStr + '</' + element.tag + '>';
}

var app = createElement('div', { id: 'root', class: 'container' }, [
	createElement('h1', {}, ['Hello ' + props.name]),
	createElement('p', {}, ['Count: ' + props.count]),
	createElement('ul', {}, [
		createElement('li', {}, ['Item 1']),
		createElement('li', {}, ['Item 2']),
		createElement('li', {}, ['Item 3']),
	])
]);

renderToString(app);
`

func newBenchSession(b *testing.B) *Session {
	b.Helper()
	s := NewSession(newBinding(), Options{MaxStackSize: 1 << 20})
	if err := s.Initialize(); err != nil {
		b.Fatal(err)
	}
	return s
}

func BenchmarkSession_Simple(b *testing.B) {
	s := newBenchSession(b)
	defer s.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Evaluate(simpleJS, "simple.js"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSession_Complex(b *testing.B) {
	s := newBenchSession(b)
	defer s.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Evaluate(complexJS, "complex.js"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSession_Bytecode(b *testing.B) {
	s := newBenchSession(b)
	defer s.Shutdown()

	code, err := s.CompileToBytecode(complexJS, "complex.js")
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.EvaluateBytecode(code); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSession_Lifecycle(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := newBenchSession(b)
		if _, err := s.Evaluate(simpleJS, "simple.js"); err != nil {
			b.Fatal(err)
		}
		s.Shutdown()
	}
}
