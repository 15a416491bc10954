package amtests

// Built-in descriptor documents, used when the operator does not supply
// overrides. The bound request names the fake resources served by the GENI
// reference aggregate, so the harness works against a stock gcf install out
// of the box; runs against any other aggregate should pass real documents
// with the descriptor flags.

const defaultRequestRSpec = `<?xml version="1.0" encoding="UTF-8"?>
<rspec type="request">
  <node component_id="urn:publicid:IDN+geni:gpo:gcf+node+fake-pc-1"/>
  <node component_id="urn:publicid:IDN+geni:gpo:gcf+node+fake-pc-2"/>
</rspec>
`

// defaultManifestRSpec is a well-formed manifest-role document, submitted
// where a request belongs to check that the aggregate rejects it.
const defaultManifestRSpec = `<?xml version="1.0" encoding="UTF-8"?>
<rspec type="manifest">
  <node component_id="urn:publicid:IDN+geni:gpo:gcf+node+fake-pc-1"/>
  <node component_id="urn:publicid:IDN+geni:gpo:gcf+node+fake-pc-2"/>
</rspec>
`

// defaultMalformedRSpec stops in the middle of an element, so no parser can
// accept it as well-formed markup.
const defaultMalformedRSpec = `<?xml version="1.0" encoding="UTF-8"?>
<rspec type="request">
  <node component_id="urn:publicid:IDN+geni:gpo:gcf+node+fake-pc-1">
`
